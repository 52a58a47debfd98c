package interaction

import "fmt"

var (
	expandWords   = []string{"展开", "展开更多", "显示更多", "查看更多", "展开全部", "显示全部", "Show more", "Read more", "Expand"}
	loadMoreWords = []string{"加载更多", "Load More", "Load more", "Show More"}
)

var (
	expandSelectors = []string{
		`button:contains('展开')`,
		`button:contains('展开更多')`,
		`button:contains('显示更多')`,
		`button:contains('查看更多')`,
		`a:contains('展开')`,
		`span:contains('展开')`,
		".expand-button",
		".show-more",
		".read-more",
		".collapse-toggle",
		`[data-toggle="collapse"]`,
	}
	loadMoreSelectors = []string{
		`button:contains('加载更多')`,
		`button:contains('Load More')`,
		".load-more",
		".load-more-button",
	}
	tabSelectors = []string{".tab", ".tab-item", ".nav-tab", ".tab-button", `[role="tab"]`, ".tab-nav-item"}
)

func builtins() []Config {
	return []Config{
		{
			Name:        "expand_buttons",
			Description: "Click every visible expand / show more control",
			Selectors:   expandSelectors,
			Script:      clickByTextScript(expandWords, expandSelectors, 0),
			MaxRounds:   3,
		},
		{
			Name:        "load_more",
			Description: "Scroll to the bottom and click a load more button",
			Selectors:   loadMoreSelectors,
			Script:      "window.scrollTo(0, document.body.scrollHeight);\n" + clickByTextScript(loadMoreWords, loadMoreSelectors, 1),
			MaxRounds:   10,
		},
		{
			Name:        "infinite_scroll",
			Description: "Scroll to the bottom once per round until the page stops growing",
			Script: `const before = document.body.scrollHeight;
window.scrollTo(0, document.body.scrollHeight);
return { height: before };`,
			MaxRounds: 10,
		},
		{
			Name:        "tab_navigation",
			Description: "Visit every tab and keep a copy of each panel",
			Selectors:   tabSelectors,
			Script:      tabScript(tabSelectors),
			MaxRounds:   1,
		},
	}
}

// tabScript clicks each tab matching selectors and appends a snapshot of the
// panel it shows to a capture section at the end of the body, so extraction
// sees every tab.
func tabScript(selectors []string) string {
	return fmt.Sprintf(`%s
const tabs = [];
for (const sel of %s) {
  for (const el of wtQuery(sel)) { if (!tabs.includes(el)) tabs.push(el); }
}
let capture = document.getElementById('webtext-tab-capture');
if (!capture) {
  capture = document.createElement('section');
  capture.id = 'webtext-tab-capture';
  document.body.appendChild(capture);
}
let visited = 0;
for (const tab of tabs) {
  if (!wtClick(tab)) continue;
  visited++;
  await new Promise((r) => setTimeout(r, 1000));
  const id = tab.getAttribute('aria-controls');
  const panel = (id && document.getElementById(id)) || document.querySelector('[role="tabpanel"]:not([hidden])');
  if (panel) {
    const block = document.createElement('div');
    const heading = document.createElement('h2');
    heading.textContent = (tab.innerText || tab.textContent || '').trim();
    block.appendChild(heading);
    block.insertAdjacentHTML('beforeend', panel.innerHTML);
    capture.appendChild(block);
  }
}
return { visited: visited, total: tabs.length };`,
		pageHelpers, jsValue(selectors))
}
