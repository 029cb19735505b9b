// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"net/http"
	"strings"

	v1 "github.com/decred/berryscan/api/v1"
	"github.com/decred/berryscan/berryscand/scanner"
	"github.com/decred/berryscan/canvas"
	"github.com/decred/berryscan/util"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// progressSource is the part of the scanner the status API reads.
type progressSource interface {
	Progress() scanner.Progress
}

// statusServer serves a read only view of the scan progress.
type statusServer struct {
	progress progressSource
	genesis  uint64
	router   *mux.Router
}

// accessLog writes gorilla access log lines to the HTTP subsystem logger.
type accessLog struct{}

func (accessLog) Write(p []byte) (int, error) {
	httpLog.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func newStatusServer(p progressSource, genesis uint64) *statusServer {
	s := &statusServer{
		progress: p,
		genesis:  genesis,
		router:   mux.NewRouter(),
	}
	s.router.HandleFunc(v1.StatusRoute, s.status).Methods("GET")
	s.router.HandleFunc(v1.BoardRoute, s.board).Methods("GET")
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter,
		r *http.Request) {
		util.RespondWithError(w, http.StatusNotFound, "not found")
	})
	return s
}

// handler returns the router wrapped in the access logger.
func (s *statusServer) handler() http.Handler {
	return handlers.CombinedLoggingHandler(accessLog{}, s.router)
}

func statusReply(p scanner.Progress, genesis uint64) v1.StatusReply {
	reply := v1.StatusReply{
		Version:           version(),
		Running:           p.Running,
		GenesisHeight:     genesis,
		FinalHeight:       p.FinalHeight,
		Cursor:            p.Cursor,
		LastScannedHeight: p.LastScannedHeight,
		Boards:            p.Boards,
		JumpProbes:        p.JumpProbes,
		JumpSkips:         p.JumpSkips,
		LinearFetches:     p.LinearFetches,
		Unavailable:       p.Unavailable,
	}
	if p.LastBoard != nil {
		reply.LastChangeHeight = p.LastBoard.BlockHeight
	}
	return reply
}

func boardReply(index int, b *canvas.Board) v1.BoardReply {
	reply := v1.BoardReply{
		Index:       index,
		BlockHeight: b.BlockHeight,
		Width:       canvas.Width,
		Height:      canvas.Height,
		Colors:      make([][]uint32, canvas.Height),
		Owners:      make([][]uint32, canvas.Height),
	}
	for y := 0; y < canvas.Height; y++ {
		reply.Colors[y] = make([]uint32, canvas.Width)
		reply.Owners[y] = make([]uint32, canvas.Width)
		for x := 0; x < canvas.Width; x++ {
			p := b.At(x, y)
			reply.Colors[y][x] = p.Color
			reply.Owners[y][x] = p.OwnerID
		}
	}
	return reply
}

func (s *statusServer) status(w http.ResponseWriter, r *http.Request) {
	util.RespondWithJSON(w, http.StatusOK,
		statusReply(s.progress.Progress(), s.genesis))
}

func (s *statusServer) board(w http.ResponseWriter, r *http.Request) {
	p := s.progress.Progress()
	if p.LastBoard == nil {
		util.RespondWithError(w, http.StatusNotFound,
			"no board recorded yet")
		return
	}
	util.RespondWithJSON(w, http.StatusOK, boardReply(p.Boards-1,
		p.LastBoard))
}
