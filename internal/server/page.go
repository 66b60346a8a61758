package server

// indexPage is the single-page chat UI. It talks to the JSON API and shows
// the authorization link when the backend reports it is unauthenticated.
const indexPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>CRM Agent</title>
<style>
body { font-family: sans-serif; max-width: 760px; margin: 2rem auto; padding: 0 1rem; }
#log { border: 1px solid #ccc; border-radius: 6px; padding: 1rem; min-height: 300px; }
.user { color: #205081; margin: .5rem 0; }
.agent { color: #1d7a46; margin: .5rem 0; white-space: pre-wrap; }
.error { color: #b00020; margin: .5rem 0; }
#bar { display: flex; gap: .5rem; margin-top: 1rem; }
#input { flex: 1; padding: .5rem; }
</style>
</head>
<body>
<h1>CRM Agent</h1>
<div id="auth"></div>
<div id="log"></div>
<div id="bar">
  <input id="input" placeholder="What would you like to do?" autofocus>
  <button id="send">Send</button>
</div>
<script>
let sessionId = null;

function append(cls, text) {
  const div = document.createElement("div");
  div.className = cls;
  div.textContent = text;
  document.getElementById("log").appendChild(div);
}

async function checkAuth() {
  const status = await fetch("/api/auth/status").then(r => r.json());
  if (!status.authenticated) {
    const info = await fetch("/api/auth/url").then(r => r.json());
    document.getElementById("auth").innerHTML =
      '<p>Not authenticated. <a href="' + info.auth_url + '">Authorize with Zoho</a></p>';
  } else {
    document.getElementById("auth").innerHTML = "<p>Connected to Zoho CRM.</p>";
  }
}

async function send() {
  const input = document.getElementById("input");
  const message = input.value.trim();
  if (!message) return;
  input.value = "";
  append("user", "You: " + message);

  const resp = await fetch("/api/chat", {
    method: "POST",
    headers: { "Content-Type": "application/json" },
    body: JSON.stringify({ session_id: sessionId, message: message }),
  });
  const body = await resp.json();
  if (body.session_id) sessionId = body.session_id;
  if (body.error) {
    append("error", body.error);
    if (body.auth_url) checkAuth();
    return;
  }
  append("agent", "Agent: " + body.reply);
}

document.getElementById("send").addEventListener("click", send);
document.getElementById("input").addEventListener("keydown", e => {
  if (e.key === "Enter") send();
});
checkAuth();
</script>
</body>
</html>
`
