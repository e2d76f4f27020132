package headless

import (
	"fmt"

	"github.com/JakeFAU/qa-docgen/internal/qadoc"
)

// extractScript walks the rendered DOM and returns one record per
// interactive or content-bearing element. Selector preference is
// id > name > data-testid > tag.class, matching what a QA engineer would
// reach for first.
const extractScript = `(() => {
	const groups = [
		["button", "button, input[type='button'], input[type='submit'], input[type='reset']", true],
		["input_text", "input[type='text'], input:not([type])", true],
		["input_password", "input[type='password']", true],
		["input_email", "input[type='email']", true],
		["input_number", "input[type='number']", true],
		["input_checkbox", "input[type='checkbox']", true],
		["input_radio", "input[type='radio']", true],
		["select_dropdown", "select", true],
		["textarea", "textarea", true],
		["link", "a[href]", true],
		["form", "form", true],
		["image", "img", false],
		["heading", "h1, h2, h3, h4, h5, h6", false],
		["paragraph", "p", false],
		["list", "ul, ol", false],
		["table", "table", false],
		["label", "label", false],
		["iframe", "iframe", false],
		["video", "video", false],
		["general_container", "div[role], span[role]", false],
	];
	const selectorFor = (el) => {
		if (el.id) {
			return "#" + el.id;
		}
		const tag = el.tagName.toLowerCase();
		if (el.hasAttribute("name")) {
			return tag + "[name='" + el.getAttribute("name") + "']";
		}
		if (el.hasAttribute("data-testid")) {
			return tag + "[data-testid='" + el.getAttribute("data-testid") + "']";
		}
		let sel = tag;
		if (el.className && typeof el.className === "string" && el.className.trim()) {
			sel += el.className.trim().split(/\s+/).map((c) => "." + c).join("");
		}
		return sel;
	};
	const seen = new Set();
	const out = [];
	for (const [type, query, interactive] of groups) {
		for (const el of document.querySelectorAll(query)) {
			if (seen.has(el)) {
				continue;
			}
			seen.add(el);
			const attrs = {};
			for (const attr of el.attributes) {
				attrs[attr.name] = attr.value;
			}
			out.push({
				element_type: type,
				selector: selectorFor(el),
				attributes: attrs,
				visible_text: (el.textContent || "").trim().slice(0, 512),
				interactive: interactive,
			});
		}
	}
	return out;
})()`

// rawElement mirrors the JSON shape produced by extractScript.
type rawElement struct {
	ElementType string            `json:"element_type"`
	Selector    string            `json:"selector"`
	Attributes  map[string]string `json:"attributes"`
	VisibleText string            `json:"visible_text"`
	Interactive bool              `json:"interactive"`
}

func toUIElements(raw []rawElement) []qadoc.UIElement {
	elements := make([]qadoc.UIElement, 0, len(raw))
	for i, r := range raw {
		elements = append(elements, qadoc.UIElement{
			ID:          fmt.Sprintf("el-%04d", i+1),
			Type:        elementType(r.ElementType),
			Selector:    r.Selector,
			Attributes:  r.Attributes,
			VisibleText: r.VisibleText,
			Interactive: r.Interactive,
		})
	}
	return elements
}

func elementType(raw string) qadoc.ElementType {
	switch t := qadoc.ElementType(raw); t {
	case qadoc.ElementButton, qadoc.ElementInputText, qadoc.ElementInputPassword,
		qadoc.ElementInputEmail, qadoc.ElementInputNumber, qadoc.ElementInputCheckbox,
		qadoc.ElementInputRadio, qadoc.ElementSelect, qadoc.ElementTextarea,
		qadoc.ElementLink, qadoc.ElementForm, qadoc.ElementImage, qadoc.ElementHeading,
		qadoc.ElementParagraph, qadoc.ElementList, qadoc.ElementTable,
		qadoc.ElementLabel, qadoc.ElementIFrame, qadoc.ElementVideo:
		return t
	default:
		return qadoc.ElementContainer
	}
}
