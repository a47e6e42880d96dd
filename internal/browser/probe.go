package browser

// probeScript collects landmark, container and clickable elements in
// document order. Rectangles are viewport-relative; the scroll offset is
// reported separately so the extractor can convert to page coordinates.
const probeScript = `() => {
	const selectors = [
		'header', 'nav', 'main', 'section', 'article', 'aside', 'footer',
		'div[role]', "div[class*='content']", "div[class*='section']",
		"div[id]:not([id=''])", 'form', 'table',
		'a', 'button', "input[type='submit']"
	];
	const ignored = new Set(['script', 'style', 'noscript', 'iframe', 'svg', 'br', 'hr']);

	const nodes = [];
	for (const el of document.querySelectorAll(selectors.join(','))) {
		const tag = el.tagName.toLowerCase();
		if (ignored.has(tag)) continue;

		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		const visible = style.display !== 'none' && style.visibility !== 'hidden' &&
			rect.width > 0 && rect.height > 0;
		const clickable = tag === 'a' || tag === 'button' || el.onclick !== null ||
			el.getAttribute('role') === 'button' || style.cursor === 'pointer';
		const children = Array.from(el.children).slice(0, 5).map(c => ({
			tag: c.tagName.toLowerCase(),
			text: (c.innerText || '').substring(0, 30)
		}));

		nodes.push({
			tag: tag,
			id: el.id || '',
			class: typeof el.className === 'string' ? el.className : '',
			text: (el.innerText || '').substring(0, 200),
			rect: { x: rect.x, y: rect.y, width: rect.width, height: rect.height },
			visible: visible,
			href: el.href || '',
			clickable: clickable,
			children: children
		});
	}

	return JSON.stringify({
		url: location.href,
		scroll_x: window.scrollX,
		scroll_y: window.scrollY,
		nodes: nodes
	});
}`
