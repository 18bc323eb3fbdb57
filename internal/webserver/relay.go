package webserver

import "net/http"

// relayPage forwards the callback URL, fragment included, to /links so the
// running instance receives it as a deep link.
const relayPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Signing in</title></head>
<body>
<p id="status">Completing sign-in...</p>
<script>
fetch("/links", {method: "POST", headers: {"Content-Type": "text/plain"}, body: window.location.href})
  .then(function (resp) {
    document.getElementById("status").textContent = resp.ok
      ? "Signed in. You can close this window."
      : "Sign-in could not be completed.";
  })
  .catch(function () {
    document.getElementById("status").textContent = "Sign-in could not be completed.";
  });
</script>
</body>
</html>
`

// handleAuthCallbackRelay handles the GET /--/auth-callback endpoint.
func (ws *WebServer) handleAuthCallbackRelay(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(relayPage))
}
