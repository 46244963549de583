package browser

// RoleQueryJS returns the first visible element with the given ARIA role
// whose accessible name contains name (case-insensitive), or null so that
// rod keeps retrying.
const RoleQueryJS = `(role, name) => {
	const implicit = {
		button: 'button, input[type="button"], input[type="submit"], input[type="reset"], [role="button"]',
		link: 'a[href], area[href], [role="link"]',
		checkbox: 'input[type="checkbox"], [role="checkbox"]',
		textbox: 'input:not([type]), input[type="text"], input[type="email"], textarea, [role="textbox"]',
	};
	const selector = implicit[role] || '[role="' + role + '"]';
	const norm = (s) => (s || '').replace(/\s+/g, ' ').trim();
	const visible = (el) => {
		if (!el.getClientRects().length) return false;
		const style = window.getComputedStyle(el);
		return style.visibility !== 'hidden' && style.display !== 'none';
	};
	const accessibleName = (el) => {
		const label = el.getAttribute('aria-label');
		if (label) return norm(label);
		const by = el.getAttribute('aria-labelledby');
		if (by) {
			return norm(by.split(/\s+/).map((id) => {
				const ref = document.getElementById(id);
				return ref ? ref.textContent : '';
			}).join(' '));
		}
		if (el.tagName === 'INPUT') return norm(el.value);
		const text = norm(el.textContent);
		if (text) return text;
		return norm(el.getAttribute('title'));
	};
	const want = norm(name).toLowerCase();
	for (const el of document.querySelectorAll(selector)) {
		if (visible(el) && accessibleName(el).toLowerCase().includes(want)) return el;
	}
	return null;
}`

// VisibleQueryJS returns the first visible element matching a CSS selector.
const VisibleQueryJS = `(selector) => {
	for (const el of document.querySelectorAll(selector)) {
		if (!el.getClientRects().length) continue;
		const style = window.getComputedStyle(el);
		if (style.visibility !== 'hidden' && style.display !== 'none') return el;
	}
	return null;
}`

// ContentJS serialises the document including its doctype.
const ContentJS = `() => {
	const dt = document.doctype ? new XMLSerializer().serializeToString(document.doctype) : '';
	return dt + document.documentElement.outerHTML;
}`
