package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"
)

// DropdownResult reports a dropdown selection with the diagnostics planners
// need to recover from a miss.
type DropdownResult struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	SelectedValue    string   `json:"selected_value,omitempty"`
	SelectorType     string   `json:"selector_type,omitempty"`
	AvailableOptions []string `json:"available_options,omitempty"`
}

// selectOptionScript runs in the page. It detects the widget kind behind the
// element, opens it when needed, and picks the option whose text matches by
// exact, then contains, then is-substring-of ordering.
const selectOptionScript = `
async (xpath, selector, optionText) => {
	const sleep = (ms) => new Promise(r => setTimeout(r, ms));

	const locate = () => {
		if (selector) {
			try { const el = document.querySelector(selector); if (el) return el; } catch (e) {}
		}
		if (xpath) {
			try {
				const r = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
				if (r.singleNodeValue) return r.singleNodeValue;
			} catch (e) {}
		}
		return null;
	};

	const matchIndex = (texts, wanted) => {
		let i = texts.findIndex(t => t.trim() === wanted);
		if (i < 0) i = texts.findIndex(t => t.includes(wanted));
		if (i < 0) i = texts.findIndex(t => wanted.includes(t.trim()) && t.trim() !== '');
		return i;
	};

	let el = locate();
	if (!el) return { success: false, message: 'dropdown element not found' };

	const sel = el.tagName === 'SELECT' ? el : el.querySelector('select');
	if (sel) {
		const opts = Array.from(sel.options);
		const texts = opts.map(o => o.textContent || '');
		const i = matchIndex(texts, optionText);
		if (i < 0) return { success: false, message: 'option not found', selector_type: 'native', available_options: texts };
		sel.selectedIndex = i;
		sel.dispatchEvent(new Event('change', { bubbles: true }));
		return { success: true, message: 'selected native option', selected_value: opts[i].value, selector_type: 'native' };
	}

	const antRoot = el.closest('.ant-select, .ant-cascader') ||
		el.querySelector('.ant-select, .ant-cascader') ||
		(el.classList.contains('ant-select') || el.classList.contains('ant-cascader') ? el : null);
	if (antRoot) {
		const trigger = antRoot.querySelector('.ant-select-selector') || antRoot;
		trigger.dispatchEvent(new MouseEvent('mousedown', { bubbles: true }));
		trigger.click();
		await sleep(400);
		const items = Array.from(document.querySelectorAll(
			'.ant-select-dropdown:not(.ant-select-dropdown-hidden) .ant-select-item-option, ' +
			'.ant-cascader-menus:not([style*="display: none"]) .ant-cascader-menu-item'));
		const texts = items.map(o => o.textContent || '');
		const i = matchIndex(texts, optionText);
		if (i < 0) return { success: false, message: 'option not found', selector_type: 'antd', available_options: texts };
		items[i].dispatchEvent(new MouseEvent('mousedown', { bubbles: true }));
		items[i].click();
		return { success: true, message: 'selected antd option', selected_value: texts[i].trim(), selector_type: 'antd' };
	}

	const combo = el.getAttribute('role') === 'combobox' || el.getAttribute('role') === 'listbox'
		? el : el.closest('[role="combobox"], [role="listbox"]');
	if (combo) {
		combo.click();
		await sleep(400);
		const items = Array.from(document.querySelectorAll('[role="option"], [role="menuitem"]'))
			.filter(o => o.offsetParent !== null);
		const texts = items.map(o => o.textContent || '');
		const i = matchIndex(texts, optionText);
		if (i < 0) return { success: false, message: 'option not found', selector_type: 'combobox', available_options: texts };
		items[i].click();
		return { success: true, message: 'selected combobox option', selected_value: texts[i].trim(), selector_type: 'combobox' };
	}

	return { success: false, message: 'no recognizable dropdown widget' };
}
`

// cascadeLevelScript clicks the matching item in the level-N menu of an open
// cascader. Levels are 1-based.
const cascadeLevelScript = `
(text, level) => {
	const menus = document.querySelectorAll('.ant-cascader-menus:not([style*="display: none"]) .ant-cascader-menu');
	if (!menus.length || level > menus.length) {
		return { success: false, message: 'cascade menu level ' + level + ' not open' };
	}
	const items = Array.from(menus[level - 1].querySelectorAll('.ant-cascader-menu-item'));
	const texts = items.map(o => (o.textContent || '').trim());
	let i = texts.findIndex(t => t === text);
	if (i < 0) i = texts.findIndex(t => t.includes(text));
	if (i < 0) return { success: false, message: 'option not in level ' + level, available_options: texts };
	items[i].click();
	return { success: true, message: 'selected cascade level ' + level, selected_value: texts[i] };
}
`

// SelectDropdownOption picks an option by text. When optionID names a crawled
// element directly, it is clicked without widget detection.
func (h *Handler) SelectDropdownOption(ctx context.Context, dropdownID, optionText, optionID string) DropdownResult {
	if optionID != "" {
		if res := h.Click(ctx, optionID); !res.Success {
			return DropdownResult{Success: false, Message: res.Message}
		}
		sleep(ctx, 500*time.Millisecond)
		return directOptionResult(optionID)
	}

	el, found := h.element(dropdownID)
	if !found {
		return DropdownResult{Success: false, Message: fmt.Sprintf("element %s not in current crawl", dropdownID)}
	}

	res, err := h.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           selectOptionScript,
		JSArgs:       []interface{}{el.XPath, el.Selector, optionText},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return DropdownResult{Success: false, Message: fmt.Sprintf("dropdown script: %v", err)}
	}

	var out DropdownResult
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &out); err != nil {
		return DropdownResult{Success: false, Message: fmt.Sprintf("dropdown result decode: %v", err)}
	}
	if out.Success {
		h.logger.Debug("dropdown selected",
			zap.String("id", dropdownID),
			zap.String("widget", out.SelectorType),
			zap.String("value", out.SelectedValue))
		sleep(ctx, 500*time.Millisecond)
	}
	return out
}

// directOptionResult reports an option_id click. The widget is an ant-design
// option by convention when the planner names the option element itself.
func directOptionResult(optionID string) DropdownResult {
	return DropdownResult{
		Success:      true,
		Message:      "clicked option " + optionID,
		SelectorType: "ant_select_option",
	}
}

// SelectCascadeLevel picks an item in an already-open cascader menu.
func (h *Handler) SelectCascadeLevel(ctx context.Context, text string, level int) DropdownResult {
	if level < 1 {
		return DropdownResult{Success: false, Message: fmt.Sprintf("invalid cascade level %d", level)}
	}
	res, err := h.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      cascadeLevelScript,
		JSArgs:  []interface{}{text, level},
		ByValue: true,
	})
	if err != nil {
		return DropdownResult{Success: false, Message: fmt.Sprintf("cascade script: %v", err)}
	}
	var out DropdownResult
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &out); err != nil {
		return DropdownResult{Success: false, Message: fmt.Sprintf("cascade result decode: %v", err)}
	}
	if out.Success {
		sleep(ctx, 500*time.Millisecond)
	}
	return out
}
