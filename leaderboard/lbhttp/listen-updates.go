package lbhttp

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/programme-lv/proctor/leaderboard"
	"github.com/programme-lv/proctor/notify"
)

// ListenToBoardUpdates streams the exam's board as server-sent events:
// once on connect and again after every recalculation.
func (h *LeaderboardHttpHandler) ListenToBoardUpdates(w http.ResponseWriter, r *http.Request) {
	if h.subscribe == nil {
		http.Error(w, "live updates are disabled", http.StatusNotImplemented)
		return
	}
	examID := chi.URLParam(r, "examID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	events, unsubscribe := h.subscribe()
	defer unsubscribe()

	var writeMutex sync.Mutex
	safeWrite := func(data string) {
		writeMutex.Lock()
		defer writeMutex.Unlock()
		io.WriteString(w, data)
		flusher.Flush()
	}

	sendBoard := func() bool {
		entries, err := h.srvc.GetBoard.Handle(r.Context(), leaderboard.GetBoardParams{ExamID: examID})
		if err != nil {
			slog.Default().Warn("failed to load leaderboard", "error", err, "exam_id", examID)
			return true
		}
		marshalled, err := json.Marshal(mapBoard(examID, entries))
		if err != nil {
			slog.Default().Error("failed to marshal leaderboard", "error", err)
			return false
		}
		safeWrite("data: " + string(marshalled) + "\n\n")
		return true
	}

	if !sendBoard() {
		return
	}

	keepAliveTicker := time.NewTicker(h.keepAlive)
	defer keepAliveTicker.Stop()

	for {
		select {
		case <-keepAliveTicker.C:
			safeWrite(": keep-alive\n\n")
		case e, ok := <-events:
			if !ok {
				return
			}
			upd, isBoard := e.(notify.LeaderboardUpdated)
			if !isBoard || upd.ExamID != examID {
				continue
			}
			if !sendBoard() {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
