package crawler

// crawlScript runs in the page. It walks the DOM, computes visibility and
// interactivity, assigns short IDs to interactive elements in traversal
// order, optionally paints numbered overlays, and returns the tree plus the
// flat id map.
const crawlScript = `
(opts) => {
	const MARKER_ID = '__webqa_marker_container__';
	const INTERACTIVE_TAGS = new Set(['a', 'button', 'input', 'select', 'textarea', 'option', 'summary', 'label']);

	let nextId = 1;
	let nextInternal = 1;

	const old = document.getElementById(MARKER_ID);
	if (old) old.remove();

	let container = null;
	if (opts.highlight) {
		container = document.createElement('div');
		container.id = MARKER_ID;
		container.style.cssText = 'position:fixed;top:0;left:0;width:0;height:0;z-index:2147483647;pointer-events:none;';
		document.body.appendChild(container);
	}

	const isVisible = (el, rect) => {
		if (rect.width <= 0 || rect.height <= 0) return false;
		const style = window.getComputedStyle(el);
		return style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
	};

	const inViewport = (rect) => {
		return rect.bottom > 0 && rect.right > 0 &&
			rect.top < window.innerHeight && rect.left < window.innerWidth;
	};

	const isInteractive = (el) => {
		const tag = el.tagName.toLowerCase();
		if (INTERACTIVE_TAGS.has(tag)) return true;
		if (el.onclick || el.getAttribute('onclick') !== null) return true;
		const role = el.getAttribute('role');
		if (role && ['button', 'link', 'checkbox', 'radio', 'tab', 'menuitem', 'combobox', 'listbox', 'option', 'switch', 'slider'].includes(role)) return true;
		const tabindex = el.getAttribute('tabindex');
		if (tabindex !== null && tabindex !== '-1') return true;
		if (el.hasAttribute('contenteditable') && el.getAttribute('contenteditable') !== 'false') return true;
		try {
			if (window.getComputedStyle(el).cursor === 'pointer') {
				const parent = el.parentElement;
				if (!parent || window.getComputedStyle(parent).cursor !== 'pointer') return true;
			}
		} catch (e) {}
		return false;
	};

	const isTopElement = (el, rect) => {
		const cx = rect.left + rect.width / 2;
		const cy = rect.top + rect.height / 2;
		try {
			const hit = document.elementFromPoint(cx, cy);
			return hit === el || el.contains(hit) || (hit && hit.contains(el));
		} catch (e) {
			return true;
		}
	};

	const cssEscape = (s) => (window.CSS && CSS.escape) ? CSS.escape(s) : s.replace(/([^a-zA-Z0-9_-])/g, '\\$1');

	const buildSelector = (el) => {
		if (el.id) return '#' + cssEscape(el.id);
		const parts = [];
		let cur = el;
		while (cur && cur !== document.body && parts.length < 6) {
			let part = cur.tagName.toLowerCase();
			if (cur.id) { parts.unshift('#' + cssEscape(cur.id)); break; }
			const cls = (cur.className && typeof cur.className === 'string')
				? cur.className.trim().split(/\s+/).filter(c => /^[a-zA-Z_][\w-]*$/.test(c)).slice(0, 2) : [];
			if (cls.length) part += '.' + cls.join('.');
			const parent = cur.parentElement;
			if (parent) {
				const siblings = Array.from(parent.children).filter(c => c.tagName === cur.tagName);
				if (siblings.length > 1) part += ':nth-of-type(' + (siblings.indexOf(cur) + 1) + ')';
			}
			parts.unshift(part);
			cur = parent;
		}
		return parts.join(' > ');
	};

	const buildXPath = (el) => {
		const parts = [];
		let cur = el;
		while (cur && cur.nodeType === Node.ELEMENT_NODE) {
			let idx = 1;
			let sib = cur.previousElementSibling;
			while (sib) {
				if (sib.tagName === cur.tagName) idx++;
				sib = sib.previousElementSibling;
			}
			parts.unshift(cur.tagName.toLowerCase() + '[' + idx + ']');
			if (cur === document.body) break;
			cur = cur.parentElement;
		}
		return '/' + parts.join('/');
	};

	const paint = (rect, id) => {
		if (!container) return;
		const colors = ['#FF5D5D', '#5DA9FF', '#50C878', '#FFB347', '#B57EDC', '#FF69B4'];
		const color = colors[(parseInt(id, 10) - 1) % colors.length];
		const box = document.createElement('div');
		box.style.cssText = 'position:fixed;pointer-events:none;box-sizing:border-box;' +
			'left:' + rect.left + 'px;top:' + rect.top + 'px;width:' + rect.width + 'px;height:' + rect.height + 'px;' +
			'border:2px solid ' + color + ';';
		const label = document.createElement('span');
		label.textContent = id;
		label.style.cssText = 'position:absolute;top:-2px;left:-2px;background:' + color + ';' +
			'color:#fff;font:bold 11px/1.4 monospace;padding:0 3px;';
		box.appendChild(label);
		container.appendChild(box);
	};

	const idMap = {};

	const walk = (el, depth) => {
		const rect = el.getBoundingClientRect();
		const visible = isVisible(el, rect);
		const interactive = visible && isInteractive(el);
		const viewport = inViewport(rect);
		const top = interactive ? isTopElement(el, rect) : false;

		const node = {
			id: '',
			internal_id: nextInternal++,
			tag: el.tagName.toLowerCase(),
			class: (typeof el.className === 'string') ? el.className : '',
			inner_text: '',
			element_type: el.getAttribute('type') || el.tagName.toLowerCase(),
			placeholder: el.getAttribute('placeholder') || '',
			attributes: {},
			selector: '',
			xpath: '',
			box: { x: rect.left, y: rect.top, width: rect.width, height: rect.height },
			center_x: rect.left + rect.width / 2,
			center_y: rect.top + rect.height / 2,
			visible: visible,
			interactive: interactive,
			top_element: top,
			in_viewport: viewport,
			depth: depth,
			children: []
		};

		const eligible = interactive && top && (!opts.viewportOnly || viewport);
		if (eligible) {
			node.id = String(nextId++);
			node.inner_text = (el.innerText || el.value || '').slice(0, 300);
			for (const { name, value } of Array.from(el.attributes || [])) {
				if (['class', 'style'].includes(name)) continue;
				node.attributes[name] = String(value).slice(0, 200);
			}
			node.selector = buildSelector(el);
			node.xpath = buildXPath(el);
			idMap[node.id] = true;
			paint(rect, node.id);
		} else if (visible && !el.children.length) {
			node.inner_text = (el.innerText || '').slice(0, 300);
			if (opts.highlightText && container && node.inner_text.trim()) {
				paint(rect, '');
			}
		}

		for (const child of Array.from(el.children)) {
			if (child.id === MARKER_ID) continue;
			const tag = child.tagName.toLowerCase();
			if (['script', 'style', 'noscript', 'template'].includes(tag)) continue;
			node.children.push(walk(child, depth + 1));
		}
		return node;
	};

	const root = walk(document.body, 0);
	return { root: root, scroll_y: window.scrollY };
}
`

// removeMarkerScript deletes the highlight overlay container.
const removeMarkerScript = `
() => {
	const c = document.getElementById('__webqa_marker_container__');
	if (c) c.remove();
	return true;
}
`
