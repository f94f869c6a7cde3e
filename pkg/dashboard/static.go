package dashboard

// getStaticAsset returns a static asset by name.
func getStaticAsset(name string) (content string, contentType string, ok bool) {
	switch name {
	case "style.css":
		return cssStyles, "text/css", true
	default:
		return "", "", false
	}
}

// cssStyles complements the Tailwind classes used by the templates.
const cssStyles = `
.mono { font-family: ui-monospace, SFMono-Regular, Menlo, Monaco, Consolas, monospace; }
a { color: #60a5fa; }
a:hover { text-decoration: underline; }

.nav-link { padding: 0.5rem 0.75rem; border-radius: 0.375rem; font-size: 0.875rem; color: #d1d5db; }
.nav-link:hover { background: #374151; color: #fff; text-decoration: none; }
.nav-link.active { background: #111827; color: #fff; }

.card { background: #1f2937; border: 1px solid #374151; border-radius: 0.5rem; padding: 1rem; }
.card .label { font-size: 0.75rem; text-transform: uppercase; color: #9ca3af; }
.card .value { font-size: 1.5rem; font-weight: 600; }

.search { background: #111827; border: 1px solid #374151; border-radius: 0.375rem; padding: 0.375rem 0.75rem; color: #f9fafb; }
.btn { background: #2563eb; color: #fff; border-radius: 0.375rem; padding: 0.375rem 1rem; }
.btn:hover { background: #1d4ed8; text-decoration: none; }

.error { background: #7f1d1d; border: 1px solid #ef4444; border-radius: 0.5rem; padding: 0.75rem 1rem; }

.badge { display: inline-block; padding: 0.125rem 0.5rem; border-radius: 9999px; font-size: 0.75rem; background: #374151; }
.badge.ok { background: #065f46; }
.badge.warn { background: #92400e; }
.badge.err { background: #991b1b; }

table.kv, table.list { width: 100%; border-collapse: collapse; }
table.kv th { text-align: left; color: #9ca3af; font-weight: 500; padding: 0.375rem 1rem 0.375rem 0; width: 12rem; vertical-align: top; }
table.kv td { padding: 0.375rem 0; word-break: break-all; }
table.list th { text-align: left; color: #9ca3af; font-weight: 500; padding: 0.5rem; border-bottom: 1px solid #374151; }
table.list td { padding: 0.5rem; border-bottom: 1px solid #1f2937; }

.data-preview { max-height: 240px; overflow-y: auto; white-space: pre-wrap; word-break: break-all; }
`
