package api

const eventsDocsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Live Events | PSX Forecast Dashboard</title>
  <style>
    *, *::before, *::after { box-sizing: border-box; }
    body {
      margin: 0;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
    }
    a { color: #58a6ff; text-decoration: none; }
    a:hover { text-decoration: underline; }
    nav {
      background: #161b22;
      border-bottom: 1px solid #30363d;
      padding: 0 24px;
      height: 48px;
      display: flex;
      align-items: center;
      gap: 24px;
    }
    nav .brand { font-weight: 600; font-size: 15px; color: #e6edf3; }
    nav .sep { color: #484f58; }
    nav .current { color: #e6edf3; font-weight: 500; }
    main { max-width: 900px; margin: 0 auto; padding: 32px 16px 64px; }
    h1 { margin: 0 0 8px; font-size: 28px; font-weight: 600; color: #e6edf3; }
    .subtitle { color: #8b949e; margin: 0 0 36px; font-size: 15px; }
    h2 {
      margin: 40px 0 12px;
      font-size: 18px;
      font-weight: 600;
      color: #e6edf3;
      padding-bottom: 8px;
      border-bottom: 1px solid #21262d;
    }
    code, pre { font-family: "SFMono-Regular", Consolas, "Liberation Mono", Menlo, monospace; font-size: 12.5px; }
    code { background: #161b22; border: 1px solid #30363d; border-radius: 4px; padding: 1px 5px; }
    pre {
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 6px;
      padding: 14px 16px;
      overflow-x: auto;
    }
    pre code { background: none; border: none; padding: 0; }
    table { border-collapse: collapse; width: 100%; margin: 12px 0; }
    th, td { text-align: left; padding: 8px 12px; border-bottom: 1px solid #21262d; }
    th { color: #8b949e; font-weight: 600; font-size: 12px; text-transform: uppercase; letter-spacing: .05em; }
  </style>
</head>
<body>
  <nav>
    <span class="brand">PSX Forecast</span>
    <span class="sep">/</span>
    <a href="/docs">API Docs</a>
    <span class="sep">/</span>
    <span class="current">Live Events</span>
  </nav>
  <main>
    <h1>Live Events</h1>
    <p class="subtitle">Forecast, portfolio and registration events pushed over Server-Sent Events or WebSocket.</p>

    <h2>Event types</h2>
    <table>
      <tr><th>Type</th><th>Published when</th><th>Data</th></tr>
      <tr><td><code>forecast.completed</code></td><td>a forecast run is archived</td><td><code>id</code>, <code>ticker</code>, <code>trend</code>, <code>current_price</code></td></tr>
      <tr><td><code>portfolio.updated</code></td><td>a holding is added or removed, or the portfolio is refreshed</td><td><code>email</code>, <code>action</code>, <code>holdings</code>, <code>total_value</code></td></tr>
      <tr><td><code>user.registered</code></td><td>an account is created</td><td><code>email</code>, <code>plan</code></td></tr>
    </table>
    <p>Both endpoints need a session, either <code>Authorization: Bearer &lt;token&gt;</code> or the <code>psx_session</code> cookie, and answer 401 without one. A client only receives events for its own account.</p>
    <p>Both endpoints accept <code>?types=forecast.completed,portfolio.updated</code> to filter.</p>

    <h2>Server-Sent Events</h2>
    <pre><code>curl -N -H "Authorization: Bearer $TOKEN" http://127.0.0.1:8501/events?types=forecast.completed

event: forecast.completed
data: {"current_price":"412.5","id":"6f1c...","ticker":"HUBC","trend":"up"}</code></pre>

    <h2>WebSocket</h2>
    <p>Connect to <code>/ws/events</code>. Each event arrives as one text frame:</p>
    <pre><code>{"type":"portfolio.updated","time":"2024-06-20T10:04:05Z","data":{"action":"add","email":"trader@example.com","holdings":2,"total_value":"8250"}}</code></pre>
    <p>Browsers send the session cookie with the upgrade request.</p>
    <pre><code>const ws = new WebSocket("ws://" + location.host + "/ws/events");
ws.onmessage = (m) =&gt; console.log(JSON.parse(m.data));</code></pre>
    <p>Slow consumers have events dropped once their buffer of 256 events is full.</p>
  </main>
</body>
</html>`
