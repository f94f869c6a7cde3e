package dashboard

// HTML templates for the dashboard pages. Each page renders into the
// layout's {{.Content}}.

const layoutTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>X1-Duel Dashboard</title>
    <script src="https://cdn.tailwindcss.com"></script>
    <link rel="stylesheet" href="/static/style.css">
</head>
<body class="bg-gray-900 text-gray-100 min-h-screen">
    <nav class="bg-gray-800 border-b border-gray-700 sticky top-0 z-50">
        <div class="container mx-auto px-4">
            <div class="flex items-center justify-between h-16">
                <div class="flex items-center space-x-8">
                    <a href="/" class="text-xl font-bold text-white">X1-Duel</a>
                    <div class="hidden md:flex items-center space-x-4">
                        <a href="/" class="nav-link {{if eq .PageName "home"}}active{{end}}">Overview</a>
                        <a href="/lobby" class="nav-link {{if eq .PageName "lobby"}}active{{end}}">Lobby</a>
                        <a href="/matches" class="nav-link {{if eq .PageName "matches"}}active{{end}}">History</a>
                        <a href="/accounts" class="nav-link {{if eq .PageName "accounts"}}active{{end}}">Accounts</a>
                    </div>
                </div>
                <form action="/accounts" method="get">
                    <input name="q" placeholder="Search address" class="search mono">
                </form>
            </div>
        </div>
    </nav>

    <main class="container mx-auto px-4 py-6">
        {{.Content}}
    </main>

    <footer class="bg-gray-800 border-t border-gray-700 mt-8 py-4">
        <div class="container mx-auto px-4 text-center text-gray-400 text-sm">
            X1-Duel Node | <span id="current-time"></span>
        </div>
    </footer>

    <script>
        function updateTime() {
            document.getElementById('current-time').textContent = new Date().toUTCString();
        }
        updateTime();
        setInterval(updateTime, 1000);

        if (window.location.pathname === '/') {
            setInterval(async () => {
                try {
                    const data = await (await fetch('/api/status')).json();
                    for (const [id, value] of Object.entries({
                        'current-slot': data.currentSlot,
                        'txs-processed': data.txsProcessed,
                        'txs-failed': data.txsFailed,
                        'accounts-count': data.accountsCount,
                    })) {
                        const el = document.getElementById(id);
                        if (el) el.textContent = (value || 0).toLocaleString();
                    }
                    const uptime = document.getElementById('uptime');
                    if (uptime) uptime.textContent = data.uptime || '0s';
                } catch (e) {
                    console.error('status refresh failed', e);
                }
            }, 5000);
        }
    </script>
</body>
</html>`

const homeTemplate = `
<h1 class="text-2xl font-bold mb-6">Node Overview</h1>

<div class="grid grid-cols-2 md:grid-cols-4 gap-4 mb-8">
    <div class="card"><div class="label">Slot</div><div id="current-slot" class="value">{{.Status.CurrentSlot}}</div></div>
    <div class="card"><div class="label">Transactions</div><div id="txs-processed" class="value">{{.Status.TxsProcessed}}</div></div>
    <div class="card"><div class="label">Failed</div><div id="txs-failed" class="value">{{.Status.TxsFailed}}</div></div>
    <div class="card"><div class="label">Accounts</div><div id="accounts-count" class="value">{{.Status.AccountsCount}}</div></div>
    <div class="card"><div class="label">Uptime</div><div id="uptime" class="value">{{.Status.Uptime}}</div></div>
    <div class="card"><div class="label">Events</div><div class="value">{{formatNumber .Status.EventsPublished}}</div></div>
    <div class="card"><div class="label">Ledger</div><div class="value">{{formatBytes .Status.LedgerSize}}</div></div>
    <div class="card"><div class="label">History</div><div class="value">{{if .Status.HistoryEnabled}}on{{else}}off{{end}}</div></div>
</div>

{{if .Status.LastError}}
<div class="error mb-8">Last error: {{.Status.LastError}}</div>
{{end}}

<h2 class="text-xl font-semibold mb-4">Platform</h2>
{{with .Platform}}
<div class="card mb-8">
    <table class="kv">
        <tr><th>Config</th><td class="mono"><a href="/accounts?q={{.Address}}">{{.Address}}</a></td></tr>
        <tr><th>Admin</th><td class="mono">{{.Admin}}</td></tr>
        <tr><th>Game authority</th><td class="mono">{{.GameAuthority}}</td></tr>
        <tr><th>Treasury</th><td class="mono"><a href="/accounts?q={{.Treasury}}">{{.Treasury}}</a></td></tr>
        <tr><th>Fee</th><td>{{.FeePercent}}%</td></tr>
        <tr><th>Status</th><td>{{if .Paused}}<span class="badge warn">Paused</span>{{else}}<span class="badge ok">Open</span>{{end}}</td></tr>
        <tr><th>Matches</th><td>{{.TotalMatches}} created, {{.MatchesCompleted}} completed</td></tr>
        <tr><th>Volume</th><td>{{.TotalVolumeSol}} SOL</td></tr>
        <tr><th>Fees collected</th><td>{{.TotalFeesCollectedSol}} SOL</td></tr>
        {{with .TreasuryBalance}}<tr><th>Treasury balance</th><td>{{sol .}} SOL</td></tr>{{end}}
        {{with .WithdrawableFees}}<tr><th>Withdrawable</th><td>{{sol .}} SOL</td></tr>{{end}}
    </table>
</div>
{{else}}
<div class="card mb-8 text-gray-400">{{.PlatformErr}}</div>
{{end}}

{{if .Recent}}
<h2 class="text-xl font-semibold mb-4">Recent Matches</h2>
<div class="card">
    <table class="list">
        <tr><th>Match</th><th>Status</th><th>Stake</th><th>Winner</th><th>Updated slot</th></tr>
        {{range .Recent}}
        <tr>
            <td class="mono"><a href="/matches/{{.MatchID}}">{{truncateHash .MatchID 8}}</a></td>
            <td><span class="badge">{{.Status}}</span></td>
            <td>{{sol .StakeAmount}} SOL</td>
            <td class="mono">{{with .Winner}}{{truncateHash .String 6}}{{else}}-{{end}}</td>
            <td>{{.UpdatedSlot}}</td>
        </tr>
        {{end}}
    </table>
</div>
{{end}}
`

const lobbyTemplate = `
<h1 class="text-2xl font-bold mb-6">Lobby</h1>
{{if .Error}}<div class="error mb-4">{{.Error}}</div>{{end}}
{{if .Matches}}
<div class="card">
    <table class="list">
        <tr><th>Match</th><th>Stake</th><th>Creator</th><th>Created</th><th>Expires</th></tr>
        {{range .Matches}}
        <tr>
            <td class="mono"><a href="/matches/{{.MatchID}}">{{truncateHash .MatchID 8}}</a></td>
            <td>{{.StakeSol}} SOL</td>
            <td class="mono">{{truncateHash .Player1 6}}</td>
            <td>{{formatTime .CreatedAt}}</td>
            <td>{{formatTime .ExpiresAt}}</td>
        </tr>
        {{end}}
    </table>
</div>
{{else}}
<div class="card text-gray-400">No matches are waiting for an opponent.</div>
{{end}}
`

const matchesTemplate = `
<h1 class="text-2xl font-bold mb-6">Match History</h1>
{{if not .Enabled}}
<div class="card text-gray-400">The history index is disabled on this node.</div>
{{else}}
<form action="/matches" method="get" class="flex space-x-2 mb-6">
    <input name="player" value="{{.Player}}" placeholder="Player address" class="search mono flex-1">
    <select name="status" class="search">
        <option value="">Any status</option>
        {{$status := .Status}}
        {{range $s := .Statuses}}
        <option value="{{$s}}" {{if eq $s $status}}selected{{end}}>{{$s}}</option>
        {{end}}
    </select>
    <button class="btn">Filter</button>
</form>
{{if .Error}}<div class="error mb-4">{{.Error}}</div>{{end}}
{{with .Stats}}
<div class="grid grid-cols-2 md:grid-cols-5 gap-4 mb-6">
    <div class="card"><div class="label">Played</div><div class="value">{{.Played}}</div></div>
    <div class="card"><div class="label">Won</div><div class="value">{{.Won}}</div></div>
    <div class="card"><div class="label">Lost</div><div class="value">{{.Lost}}</div></div>
    <div class="card"><div class="label">Wagered</div><div class="value">{{sol .Wagered}}</div></div>
    <div class="card"><div class="label">Winnings</div><div class="value">{{sol .Winnings}}</div></div>
</div>
{{end}}
<div class="card">
    <table class="list">
        <tr><th>Match</th><th>Status</th><th>Stake</th><th>Prize</th><th>Ended</th></tr>
        {{range .Matches}}
        <tr>
            <td class="mono"><a href="/matches/{{.MatchID}}">{{truncateHash .MatchID 8}}</a></td>
            <td><span class="badge">{{.Status}}</span></td>
            <td>{{sol .StakeAmount}} SOL</td>
            <td>{{if .PrizeAmount}}{{sol .PrizeAmount}} SOL{{else}}-{{end}}</td>
            <td>{{formatTime .EndedAt}}</td>
        </tr>
        {{else}}
        <tr><td colspan="5" class="text-gray-400">No matches found.</td></tr>
        {{end}}
    </table>
</div>
{{end}}
`

const matchDetailTemplate = `
<h1 class="text-2xl font-bold mb-6">Match</h1>
{{if .Error}}
<div class="error">Match {{.Ref}}: {{.Error}}</div>
{{else}}
{{with .Match}}
<div class="card mb-6">
    <table class="kv">
        <tr><th>Match id</th><td class="mono">{{.MatchID}}</td></tr>
        <tr><th>Address</th><td class="mono"><a href="/accounts?q={{.Address}}">{{.Address}}</a></td></tr>
        <tr><th>Escrow</th><td class="mono"><a href="/accounts?q={{.Escrow}}">{{.Escrow}}</a>{{with .EscrowBalance}} ({{sol .}} SOL){{end}}</td></tr>
        <tr><th>Status</th><td><span class="badge">{{.Status}}</span>{{if .Expired}} <span class="badge warn">expired</span>{{end}}</td></tr>
        <tr><th>Stake</th><td>{{.StakeSol}} SOL each</td></tr>
        <tr><th>Player 1</th><td class="mono">{{.Player1}}</td></tr>
        <tr><th>Player 2</th><td class="mono">{{with .Player2}}{{deref .}}{{else}}-{{end}}</td></tr>
        <tr><th>Winner</th><td class="mono">{{with .Winner}}{{deref .}}{{else}}-{{end}}</td></tr>
        <tr><th>Created</th><td>{{formatTime .CreatedAt}}</td></tr>
        <tr><th>Started</th><td>{{formatTime .StartedAt}}</td></tr>
        <tr><th>Ended</th><td>{{formatTime .EndedAt}}</td></tr>
        {{if .PrizeAmount}}
        <tr><th>Fee</th><td>{{sol .FeeAmount}} SOL</td></tr>
        <tr><th>Prize</th><td>{{sol .PrizeAmount}} SOL</td></tr>
        {{end}}
    </table>
</div>
{{end}}
{{with .History}}
<h2 class="text-xl font-semibold mb-4">Indexed</h2>
<div class="card">
    <table class="kv">
        <tr><th>Created slot</th><td>{{.CreatedSlot}}</td></tr>
        <tr><th>Updated slot</th><td>{{.UpdatedSlot}}</td></tr>
        {{if .ClaimedAt}}<tr><th>Claimed</th><td>{{formatTime .ClaimedAt}}</td></tr>{{end}}
        {{if .Refunded}}<tr><th>Refunded</th><td>{{sol .Refunded}} SOL</td></tr>{{end}}
        <tr><th>Last transaction</th><td class="mono"><a href="/transactions/{{.LastSignature}}">{{truncateHash .LastSignature 10}}</a></td></tr>
    </table>
</div>
{{end}}
{{end}}
`

const accountsTemplate = `
<h1 class="text-2xl font-bold mb-6">Account Lookup</h1>
<form action="/accounts" method="get" class="flex space-x-2 mb-6">
    <input name="q" value="{{.Query}}" placeholder="Base58 address" class="search mono flex-1">
    <button class="btn">Search</button>
</form>
{{if .SearchErr}}<div class="error">{{.SearchErr}}</div>{{end}}
{{with .Account}}
<div class="card mb-6">
    <table class="kv">
        <tr><th>Address</th><td class="mono">{{.Pubkey}}</td></tr>
        <tr><th>Balance</th><td>{{sol .Lamports}} SOL <span class="text-gray-400">({{.Lamports}} lamports)</span></td></tr>
        <tr><th>Owner</th><td class="mono">{{.Owner}}</td></tr>
        <tr><th>Data</th><td>{{.DataLen}} bytes</td></tr>
        <tr><th>Rent exempt</th><td>{{.RentExempt}}</td></tr>
        {{if .Record}}<tr><th>Record</th><td><span class="badge">{{.Record}}</span></td></tr>{{end}}
    </table>
</div>
{{with .Match}}
<p class="mb-6"><a href="/matches/{{.MatchID}}" class="btn">View match</a></p>
{{end}}
{{if .DataHex}}
<h2 class="text-xl font-semibold mb-2">Data</h2>
<pre class="card mono data-preview">{{.DataHex}}</pre>
{{end}}
{{end}}
`

const transactionTemplate = `
<h1 class="text-2xl font-bold mb-6">Transaction</h1>
{{if .Error}}
<div class="error">{{.Signature}}: {{.Error}}</div>
{{else}}
{{with .Transaction}}
<div class="card mb-6">
    <table class="kv">
        <tr><th>Signature</th><td class="mono">{{.Signature}}</td></tr>
        <tr><th>Result</th><td>{{if .Success}}<span class="badge ok">Success</span>{{else}}<span class="badge err">{{if .ErrorName}}{{.ErrorName}}{{else}}Failed{{end}}</span> {{.Error}}{{end}}</td></tr>
        <tr><th>Slot</th><td>{{.Slot}}</td></tr>
        <tr><th>Time</th><td>{{formatTime .BlockTime}}</td></tr>
        <tr><th>Fee payer</th><td class="mono"><a href="/accounts?q={{.FeePayer}}">{{.FeePayer}}</a></td></tr>
        <tr><th>Compute</th><td>{{.ComputeUnitsConsumed}} units</td></tr>
    </table>
</div>

<h2 class="text-xl font-semibold mb-2">Instructions</h2>
{{range $i, $ix := .Instructions}}
<div class="card mb-3">
    <div class="mb-2">#{{$i}} <span class="badge">{{$ix.Program}}</span>{{with $ix.Type}} {{.}}{{end}}</div>
    {{range $ix.Accounts}}<div class="mono text-sm"><a href="/accounts?q={{.}}">{{.}}</a></div>{{end}}
</div>
{{end}}

{{if .LogMessages}}
<h2 class="text-xl font-semibold mb-2 mt-6">Logs</h2>
<pre class="card mono data-preview">{{range .LogMessages}}{{.}}
{{end}}</pre>
{{end}}
{{end}}
{{end}}
`
