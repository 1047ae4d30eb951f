package demo

// demoPage is a self-contained page that drives the /api/test endpoint.
const demoPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1.0" />
  <title>Pay Per Crawl Gate — Live Demo</title>
  <style>
    *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
    :root {
      --bg: #0A0F1C; --surface: #1E293B; --inset: #0F172A; --border: #334155;
      --cyan: #22D3EE; --green: #4ADE80; --red: #F87171;
      --text: #E2E8F0; --muted: #94A3B8;
      --mono: 'JetBrains Mono', 'Fira Code', monospace;
    }
    body {
      background: var(--bg); color: var(--text);
      font-family: system-ui, sans-serif; min-height: 100vh; padding: 2rem;
    }
    h1 { font-size: 1.4rem; margin-bottom: 0.5rem; }
    p.sub { color: var(--muted); margin-bottom: 1.5rem; }
    .panel {
      background: var(--surface); border: 1px solid var(--border);
      border-radius: 8px; padding: 1.25rem; margin-bottom: 1rem; max-width: 720px;
    }
    .panel h2 { font-size: 0.85rem; text-transform: uppercase; color: var(--muted); margin-bottom: 0.75rem; }
    button {
      background: var(--inset); color: var(--text); border: 1px solid var(--border);
      border-radius: 6px; padding: 0.45rem 0.9rem; margin: 0 0.4rem 0.4rem 0;
      font-family: var(--mono); font-size: 0.8rem; cursor: pointer;
    }
    button:hover { border-color: var(--cyan); }
    button.selected { border-color: var(--cyan); color: var(--cyan); }
    pre {
      background: var(--inset); border: 1px solid var(--border); border-radius: 6px;
      padding: 1rem; font-family: var(--mono); font-size: 0.78rem;
      white-space: pre-wrap; word-break: break-all; min-height: 6rem;
    }
    .ok { color: var(--green); }
    .denied { color: var(--red); }
  </style>
</head>
<body>
  <h1>Pay Per Crawl Gate</h1>
  <p class="sub">Pick a crawler and a payment declaration, then run the exchange.</p>

  <div class="panel">
    <h2>Crawler</h2>
    <div id="crawlers"></div>
  </div>
  <div class="panel">
    <h2>Payment declaration</h2>
    <div id="actions">
      <button data-action="none" class="selected">none</button>
      <button data-action="max-price">crawler-max-price</button>
      <button data-action="exact-price">crawler-exact-price</button>
    </div>
  </div>
  <div class="panel">
    <h2>Exchange</h2>
    <pre id="result">Select a crawler to begin.</pre>
  </div>

  <script>
    const crawlers = ['Human', 'GPTBot', 'ClaudeBot', 'Google-Extended',
      'FacebookBot', 'Bytespider', 'PerplexityBot', 'Amazonbot'];
    let crawler = null;
    let action = 'none';

    const crawlersDiv = document.getElementById('crawlers');
    for (const name of crawlers) {
      const btn = document.createElement('button');
      btn.textContent = name === 'Human' ? '\u{1F464} ' + name : name;
      btn.dataset.crawler = name;
      btn.addEventListener('click', () => { crawler = name; select(crawlersDiv, btn); run(); });
      crawlersDiv.appendChild(btn);
    }
    document.querySelectorAll('#actions button').forEach(btn => {
      btn.addEventListener('click', () => {
        action = btn.dataset.action;
        select(document.getElementById('actions'), btn);
        run();
      });
    });

    function select(container, chosen) {
      container.querySelectorAll('button').forEach(b => b.classList.remove('selected'));
      chosen.classList.add('selected');
    }

    async function run() {
      if (!crawler) return;
      const result = document.getElementById('result');
      const resp = await fetch('/api/test?crawler=' + encodeURIComponent(crawler) +
        '&action=' + encodeURIComponent(action));
      if (!resp.ok && resp.status !== 404) {
        result.textContent = 'request failed: ' + resp.status;
        return;
      }
      const data = await resp.json();
      const cls = data.status === 200 ? 'ok' : 'denied';
      result.innerHTML =
        '&gt; request headers\n' + JSON.stringify(data.requestHeaders, null, 2) +
        '\n\n&lt; <span class="' + cls + '">' + data.status + ' ' + data.statusText + '</span>\n' +
        JSON.stringify(data.responseHeaders, null, 2) +
        '\n\n' + data.note;
    }
  </script>
</body>
</html>
`
