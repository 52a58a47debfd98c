package interaction

import (
	"encoding/json"
	"fmt"
)

// ContentLengthScript measures the page for convergence checks.
const ContentLengthScript = `return document.body ? document.body.innerHTML.length : 0;`

// pageHelpers is prepended to scripts that match elements by selector or text.
// Matched elements are tagged so a later round never clicks them twice
// (clicking an "expand" toggle again would collapse it).
const pageHelpers = `
const wtVisible = (el) => {
  if (!el || el.offsetParent === null) return false;
  const style = window.getComputedStyle(el);
  if (style.display === 'none' || style.visibility === 'hidden') return false;
  return el.getBoundingClientRect().width > 0;
};
const wtParse = (sel) => {
  const m = sel.match(/^(.*?):contains\((['"])(.*)\2\)$/);
  return m ? { css: m[1] || '*', text: m[3] } : { css: sel, text: null };
};
const wtQuery = (sel) => {
  const { css, text } = wtParse(sel);
  let nodes = [];
  try { nodes = Array.from(document.querySelectorAll(css)); } catch (e) { return []; }
  if (text === null) return nodes;
  return nodes.filter((el) => (el.textContent || '').includes(text));
};
const wtByText = (words, maxLen) => Array.from(document.querySelectorAll('button, a, span, div, p, li')).filter((el) => {
  const text = (el.innerText || el.textContent || '').trim();
  return text.length > 0 && text.length <= maxLen && words.some((w) => text.includes(w));
});
const wtClick = (el) => {
  if (el.dataset.webtextClicked || !wtVisible(el)) return false;
  el.dataset.webtextClicked = '1';
  try { el.click(); return true; } catch (e) { return false; }
};
`

// ClickVisibleScript returns a page script that clicks every visible, not yet
// clicked element matching any of selectors and returns the click count.
// Selectors are CSS, optionally suffixed with :contains("text").
func ClickVisibleScript(selectors []string) string {
	return fmt.Sprintf(`%s
const selectors = %s;
let clicked = 0;
for (const sel of selectors) {
  for (const el of wtQuery(sel)) {
    if (wtClick(el)) clicked++;
  }
}
return clicked;`, pageHelpers, jsValue(selectors))
}

// clickByTextScript clicks visible elements whose short text contains one of
// words, plus anything matching selectors. A positive limit caps the clicks
// per call.
func clickByTextScript(words, selectors []string, limit int) string {
	return fmt.Sprintf(`%s
const found = wtByText(%s, 20);
for (const sel of %s) {
  for (const el of wtQuery(sel)) { if (!found.includes(el)) found.push(el); }
}
const limit = %d;
let clicked = 0;
for (const el of found) {
  if (limit > 0 && clicked >= limit) break;
  if (wtClick(el)) clicked++;
}
return { clicked: clicked, total: found.length };`,
		pageHelpers, jsValue(words), jsValue(selectors), limit)
}

func jsValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
