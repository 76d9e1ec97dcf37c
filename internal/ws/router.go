package ws

import (
	"encoding/json"
	"log/slog"
)

// route demultiplexes one inbound frame. Malformed JSON is logged and
// dropped; unknown types are logged and ignored so a malformed client is
// never amplified; handler errors come back to the originator as a generic
// error frame. The socket is never closed here.
func (h *Hub) route(client *Client, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		client.logger.Warn("malformed frame dropped", slog.String("error", err.Error()))
		return
	}

	var err error
	switch env.Type {
	case MsgSetOnline:
		err = h.handleSetOnline(client, data)
	case MsgCreateChallenge:
		err = h.handleCreateChallenge(client, data)
	case MsgAcceptChallenge:
		err = h.handleAcceptChallenge(client, data)
	case MsgJoinOpenChallenge:
		err = h.handleJoinOpenChallenge(client, data)
	case MsgStartChallenge:
		err = h.handleStartChallenge(client, data)
	case MsgSelectWinner:
		err = h.handleSelectWinner(client, data)
	case MsgClaimVictory:
		err = h.handleClaimVictory(client, data)
	case MsgGetWinnerSelections:
		err = h.handleGetWinnerSelections(client)
	case "":
		client.logger.Warn("frame without type dropped")
		return
	default:
		client.logger.Warn("unknown message type ignored", slog.String("msg_type", env.Type))
		return
	}

	if err != nil {
		client.logger.Error("handler failed",
			slog.String("msg_type", env.Type),
			slog.String("error", err.Error()))
		client.Send(newFailureFrame(MsgError, "Failed to process message"))
	}
}
