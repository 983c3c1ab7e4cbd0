package web

// Single-page dashboard: live status table fed by the SSE stream plus
// start/stop controls.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Coinpilot</title>
  <link rel="preconnect" href="https://fonts.googleapis.com">
  <link rel="preconnect" href="https://fonts.gstatic.com" crossorigin>
  <link href="https://fonts.googleapis.com/css2?family=Press+Start+2P&family=Space+Mono:wght@400;700&display=swap" rel="stylesheet">
  <style>
    :root {
      --bg:#ffffff;
      --ink:#111111;
      --ink-mid:#4d4d4d;
      --ink-soft:#9c9c9c;
      --panel:#f6f6f6;
    }
    * { box-sizing:border-box; }
    body {
      margin:0;
      min-height:100vh;
      padding:2rem;
      background:var(--bg);
      color:var(--ink);
      font-family:'Space Mono','JetBrains Mono',monospace;
    }
    #app {
      width:min(1400px, 96vw);
      margin:0 auto;
      background:var(--panel);
      border:3px solid var(--ink);
      padding:2rem;
      box-shadow:12px 12px 0 rgba(0,0,0,.15);
    }
    header { display:flex; justify-content:space-between; align-items:center; gap:1rem; margin-bottom:1.5rem; }
    .eyebrow {
      font-family:'Press Start 2P','Space Mono',monospace;
      font-size:.6rem;
      text-transform:uppercase;
      letter-spacing:.2em;
      margin:0;
    }
    .status {
      font-size:.65rem;
      text-transform:uppercase;
      letter-spacing:.1em;
      border:2px solid var(--ink);
      padding:.4rem .9rem;
      background:#fff;
      box-shadow:4px 4px 0 rgba(0,0,0,.15);
    }
    .controls { display:flex; gap:.6rem; }
    button {
      font-family:inherit;
      font-size:.65rem;
      text-transform:uppercase;
      letter-spacing:.1em;
      border:2px solid var(--ink);
      background:#fff;
      padding:.5rem 1rem;
      cursor:pointer;
      box-shadow:4px 4px 0 rgba(0,0,0,.15);
    }
    button:active { box-shadow:none; transform:translate(4px,4px); }
    .summary { display:flex; gap:1rem; margin-bottom:1.5rem; flex-wrap:wrap; }
    .stat {
      border:2px solid var(--ink);
      background:#fff;
      padding:.8rem 1.2rem;
      min-width:160px;
    }
    .stat .label { font-size:.55rem; text-transform:uppercase; letter-spacing:.15em; color:var(--ink-mid); }
    .stat .value { margin-top:.4rem; font-size:1.1rem; font-weight:700; }
    table { width:100%; border-collapse:collapse; background:#fff; border:2px solid var(--ink); }
    th, td { padding:.45rem .7rem; font-size:.65rem; text-align:right; border-bottom:1px dashed var(--ink-soft); }
    th { text-transform:uppercase; letter-spacing:.1em; border-bottom:2px solid var(--ink); }
    th:first-child, td:first-child, th:nth-child(2), td:nth-child(2) { text-align:left; }
    tr.held { background:rgba(27,154,170,.08); font-weight:700; }
    td.err { color:#d7263d; }
    .empty-state {
      border:2px dashed var(--ink-soft);
      padding:2rem;
      text-align:center;
      font-size:.8rem;
      letter-spacing:.12em;
      text-transform:uppercase;
      color:var(--ink-mid);
    }
  </style>
</head>
<body>
  <div id="app">
    <header>
      <p class="eyebrow">coinpilot</p>
      <div class="controls">
        <button id="btnStart">Start</button>
        <button id="btnStop">Stop</button>
      </div>
      <div id="sse-status" class="status">Connecting…</div>
    </header>
    <section class="summary">
      <div class="stat"><div class="label">Engine</div><div class="value" id="engineState">—</div></div>
      <div class="stat"><div class="label">Quote balance</div><div class="value" id="quoteBalance">—</div></div>
      <div class="stat"><div class="label">Coin value</div><div class="value" id="coinValue">—</div></div>
      <div class="stat"><div class="label">Total assets</div><div class="value" id="totalAssets">—</div></div>
    </section>
    <div id="emptyState" class="empty-state">Waiting for status snapshots…</div>
    <table id="statusTable" style="display:none">
      <thead>
        <tr>
          <th>Symbol</th><th>Category</th><th>Price</th><th>Score</th>
          <th>RSI</th><th>MFI</th><th>Target</th><th>Stop</th>
          <th>Buy</th><th>P/L %</th><th>Cooldown</th>
        </tr>
      </thead>
      <tbody id="statusBody"></tbody>
    </table>
  </div>
<script>
const statusEl = document.getElementById('sse-status');
const bodyEl = document.getElementById('statusBody');
const tableEl = document.getElementById('statusTable');
const emptyState = document.getElementById('emptyState');

const fmt = (v, digits) => {
  const num = parseFloat(v);
  if(!Number.isFinite(num) || num === 0){ return '—'; }
  return num.toFixed(digits === undefined ? 2 : digits);
};

function render(snapshot){
  document.getElementById('engineState').textContent = snapshot.active ? 'ACTIVE' : 'STOPPED';
  const s = snapshot.summary || {};
  document.getElementById('quoteBalance').textContent = fmt(s.quote_balance);
  document.getElementById('coinValue').textContent = fmt(s.coin_value);
  document.getElementById('totalAssets').textContent = fmt(s.total_assets);

  const items = snapshot.data || [];
  if(items.length === 0){ return; }
  emptyState.style.display = 'none';
  tableEl.style.display = '';

  bodyEl.innerHTML = '';
  for(const item of items){
    const tr = document.createElement('tr');
    if(item.held){ tr.className = 'held'; }
    const cells = [
      item.symbol,
      item.category,
      fmt(item.price, 6),
      fmt(item.score, 1),
      fmt(item.rsi, 0),
      fmt(item.mfi, 0),
      fmt(item.target_price, 6),
      fmt(item.stop_loss_price, 6),
      fmt(item.buy_price, 6),
      fmt(item.profit_rate),
      item.cooldown_left_sec ? Math.ceil(item.cooldown_left_sec) + 's' : '—'
    ];
    for(const value of cells){
      const td = document.createElement('td');
      td.textContent = value;
      tr.appendChild(td);
    }
    if(item.error){
      const td = tr.children[3];
      td.textContent = 'err';
      td.className = 'err';
      td.title = item.error;
    }
    bodyEl.appendChild(tr);
  }
}

async function post(path){
  try{
    const resp = await fetch(path, { method:'POST' });
    const payload = await resp.json();
    if(!payload.success){ console.warn(path, payload.error); }
  }catch(err){
    console.error(path, err);
  }
}

document.getElementById('btnStart').addEventListener('click', () => post('/start'));
document.getElementById('btnStop').addEventListener('click', () => post('/stop'));

function connectSSE(){
  const source = new EventSource('/status/stream');
  statusEl.textContent = 'Status: receiving data';
  source.addEventListener('status', (event) => {
    try{
      render(JSON.parse(event.data));
    }catch(err){
      console.error('payload parse', err);
    }
  });
  source.addEventListener('error', () => {
    statusEl.textContent = 'Reconnecting…';
    source.close();
    setTimeout(connectSSE, 2000);
  });
}

connectSSE();
</script>
</body>
</html>`
