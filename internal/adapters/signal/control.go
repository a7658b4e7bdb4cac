package signal

import "github.com/dkeye/Dispatch/internal/core"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: core.TypePong,
	}
	ctl.sendJSON(conn, resp)
}
