package view

import (
	"bytes"
	"html/template"
)

// ItemPageData provides the dynamic fields of the standalone item page.
type ItemPageData struct {
	SiteName string
	Title    string
	// Content is the item body, already decorated with inline buttons when enabled.
	Content template.HTML
	// Widget is the floating share widget emitted once per page, if any.
	Widget template.HTML
}

var itemPageTmpl = template.Must(template.New("item_page").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1" />
	<title>{{.Title}}{{if .SiteName}} | {{.SiteName}}{{end}}</title>
	<style>
		:root {
			--text: #1f2937;
			--muted: #6b7280;
			--accent: #2563eb;
			font-family: "Inter", -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
		}
		body { margin: 0; color: var(--text); }
		main { max-width: 720px; margin: 48px auto; padding: 0 16px; line-height: 1.6; }
		.powershare-inline { margin-top: 32px; border-top: 1px solid #e5e7eb; padding-top: 16px; }
		.powershare-buttons { display: flex; flex-wrap: wrap; gap: 8px; }
		.powershare-link {
			display: inline-flex; align-items: center; gap: 6px;
			padding: 6px 14px; border-radius: 999px;
			background: #f3f4f6; color: var(--text); text-decoration: none;
		}
		.powershare-link:hover { background: #e5e7eb; }
		.powershare-count { font-weight: 700; }
		.powershare-floating { position: fixed; top: 35%; z-index: 50; }
		.powershare-floating.powershare-left { left: 12px; }
		.powershare-floating.powershare-right { right: 12px; }
		.powershare-floating ul { list-style: none; margin: 8px 0 0; padding: 0; display: grid; gap: 6px; }
		.powershare-toggle {
			border: 0; border-radius: 12px; padding: 10px 12px;
			background: var(--accent); color: #fff; cursor: pointer;
		}
		@media (max-width: 640px) {
			.powershare-mobile-hidden { display: none; }
			.powershare-floating.powershare-mobile-bottom {
				top: auto; bottom: 0; left: 0; right: 0;
				background: #fff; box-shadow: 0 -4px 16px rgba(0,0,0,0.08); padding: 8px;
			}
		}
	</style>
</head>
<body>
	<main>
		<article>
			<h1>{{.Title}}</h1>
			{{.Content}}
		</article>
	</main>
	{{.Widget}}
	<script>
		(function() {
			const post = (root, service) => {
				if (!root || !root.dataset.endpoint) return;
				const body = new URLSearchParams({
					item_id: root.dataset.item,
					service: service,
					token: root.dataset.token || ""
				});
				fetch(root.dataset.endpoint, { method: "POST", body: body })
					.then((res) => res.json())
					.then((data) => {
						if (data && data.success && typeof data.count_label === "string") {
							root.querySelectorAll(".powershare-count").forEach((el) => {
								el.textContent = data.count_label;
							});
						}
					})
					.catch(() => {});
			};

			document.querySelectorAll(".powershare-toggle").forEach((btn) => {
				btn.addEventListener("click", () => {
					const list = btn.parentElement.querySelector(".powershare-services");
					const open = btn.getAttribute("aria-expanded") === "true";
					btn.setAttribute("aria-expanded", String(!open));
					if (list) list.hidden = open;
				});
			});

			document.querySelectorAll(".powershare-link").forEach((link) => {
				link.addEventListener("click", (ev) => {
					const root = link.closest("[data-item]");
					const action = link.dataset.action;
					if (action === "copy") {
						ev.preventDefault();
						if (navigator.clipboard) navigator.clipboard.writeText(link.href);
					} else if (action === "print") {
						ev.preventDefault();
						window.print();
					}
					post(root, link.dataset.service);
				});
			});
		})();
	</script>
</body>
</html>
`))

// RenderItemPage expands the standalone item page.
func RenderItemPage(data ItemPageData) (string, error) {
	if data.Title == "" {
		data.Title = "Untitled"
	}
	var buf bytes.Buffer
	if err := itemPageTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ParagraphHTML escapes plain text and wraps it in a paragraph.
func ParagraphHTML(text string) template.HTML {
	if text == "" {
		return ""
	}
	return template.HTML("<p>" + template.HTMLEscapeString(text) + "</p>")
}
