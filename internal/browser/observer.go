package browser

// observerBinding is the CDP runtime binding the injected script posts
// events through.
const observerBinding = "__stepcapEmit"

// observerScript is injected into every document. It forwards clicks,
// committed input values, scrolls, and history navigations as JSON
// payloads. The element path is a chain of element-child indexes anchored
// at document.body, resolved Go-side against the included DOM snapshot.
const observerScript = `(() => {
	if (window.__stepcapObserver) return;
	window.__stepcapObserver = true;

	const emit = (payload) => {
		try { window.__stepcapEmit(JSON.stringify(payload)); } catch (e) {}
	};

	const pathOf = (el) => {
		const path = [];
		for (; el && el !== document.body; el = el.parentElement) {
			if (!el.parentElement) return path;
			path.unshift(Array.prototype.indexOf.call(el.parentElement.children, el));
		}
		return path;
	};

	const snapshot = () =>
		document.documentElement ? document.documentElement.outerHTML : '';

	document.addEventListener('click', (e) => {
		const t = e.target;
		if (!(t instanceof Element)) return;
		emit({
			kind: 'click',
			timestamp: Date.now(),
			url: location.href,
			path: pathOf(t),
			ownUI: !!t.closest('[data-stepcap-ui]'),
			dom: snapshot()
		});
	}, true);

	document.addEventListener('change', (e) => {
		const t = e.target;
		if (!(t instanceof Element)) return;
		emit({
			kind: 'input',
			timestamp: Date.now(),
			url: location.href,
			path: pathOf(t),
			value: ('value' in t) ? String(t.value) : '',
			dom: snapshot()
		});
	}, true);

	window.addEventListener('scroll', () => {
		emit({
			kind: 'scroll',
			timestamp: Date.now(),
			url: location.href,
			scrollY: Math.round(window.scrollY)
		});
	}, { passive: true });

	const navigated = () => emit({
		kind: 'navigation',
		timestamp: Date.now(),
		url: location.href
	});
	window.addEventListener('popstate', navigated);
	const hook = (fn) => function (...args) {
		const out = fn.apply(this, args);
		navigated();
		return out;
	};
	history.pushState = hook(history.pushState);
	history.replaceState = hook(history.replaceState);
})();`
