// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package live

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const indexHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>co2node</title></head>
<body style="font-family:sans-serif">
<h1 id="co2">-</h1>
<p id="env"></p>
<script>
var ws = new WebSocket((location.protocol == "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = function(e) {
  var m = JSON.parse(e.data);
  document.getElementById("co2").textContent = m.co2_ppm + " ppm";
  document.getElementById("env").textContent = m.temperature_c + " °C, " + m.humidity_rh + " %RH, " + m.pressure_pa + " Pa (" + m.time + ")";
};
</script>
</body>
</html>
`

// Handler returns the routes of the live view: the websocket at /ws and a
// minimal page at /.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, indexHTML)
	})
	return mux
}

// Serve listens on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	lg.Infof("serving live view on %s", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "live: listen on %s", addr)
	}
	return ctx.Err()
}
