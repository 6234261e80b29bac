package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"turfpoint.gg/internal/engine"
	"turfpoint.gg/internal/game"
	"turfpoint.gg/internal/store"
	"turfpoint.gg/internal/tick"
)

const maxBodyBytes = 64 << 10

// Server exposes the player and admin HTTP surface. Player endpoints
// authenticate with a bearer token, admin endpoints additionally require
// the admin role.
type Server struct {
	store    *store.Store
	engine   *engine.Engine
	archiver *tick.Archiver
	log      *log.Logger
	schemas  *requestSchemas
}

func NewServer(st *store.Store, eng *engine.Engine, arch *tick.Archiver, logger *log.Logger) (*Server, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, fmt.Errorf("compile request schemas: %w", err)
	}
	return &Server{store: st, engine: eng, archiver: arch, log: logger, schemas: schemas}, nil
}

// Register mounts all routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/puzzle", s.withUser(s.handlePuzzleNew, http.MethodPost))
	mux.HandleFunc("/v1/puzzle/solve", s.withUser(s.handlePuzzleSolve, http.MethodPost))
	mux.HandleFunc("/v1/action", s.withUser(s.handleAction, http.MethodPost))
	mux.HandleFunc("/v1/checkin", s.withUser(s.handleCheckIn, http.MethodPost))
	mux.HandleFunc("/v1/points", s.withUser(s.handlePoints, http.MethodGet))
	mux.HandleFunc("/v1/game", s.withUser(s.handleGame, http.MethodGet))

	mux.HandleFunc("/admin/v1/tick/run", s.withAdmin(s.handleTickRun, http.MethodPost))
	mux.HandleFunc("/admin/v1/tick/snapshot", s.withAdmin(s.handleSnapshot, http.MethodPost))
	mux.HandleFunc("/admin/v1/game/state", s.withAdmin(s.handleGameState, http.MethodPost))
}

type userHandler func(rw http.ResponseWriter, r *http.Request, user store.User)

func (s *Server) withUser(h userHandler, method string) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			rw.Header().Set("Allow", method)
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			s.writeError(rw, game.Errorf(game.CodeAuthError, "missing bearer token"))
			return
		}
		user, err := s.store.UserByToken(r.Context(), token)
		if err != nil {
			s.writeError(rw, err)
			return
		}
		h(rw, r, user)
	}
}

func (s *Server) withAdmin(h userHandler, method string) http.HandlerFunc {
	return s.withUser(func(rw http.ResponseWriter, r *http.Request, user store.User) {
		if user.Role != store.RoleAdmin {
			s.writeError(rw, game.Errorf(game.CodeAuthError, "admin role required"))
			return
		}
		h(rw, r, user)
	}, method)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}

// decodeBody reads the request body, checks it against schema and unmarshals
// it into dst. Schema violations surface as INVALID_INPUT.
func (s *Server) decodeBody(r *http.Request, schema interface{ Validate(any) error }, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return game.Errorf(game.CodeInvalidInput, "read body: %v", err)
	}
	if len(body) > maxBodyBytes {
		return game.Errorf(game.CodeInvalidInput, "body exceeds %d bytes", maxBodyBytes)
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return game.Errorf(game.CodeInvalidInput, "malformed json: %v", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return game.Errorf(game.CodeInvalidInput, "invalid request: %v", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return game.Errorf(game.CodeInvalidInput, "malformed json: %v", err)
	}
	return nil
}

func (s *Server) handlePuzzleNew(rw http.ResponseWriter, r *http.Request, user store.User) {
	issued, err := s.engine.IssuePuzzle(r.Context(), user.ID)
	if err != nil {
		s.writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, issued)
}

type solveRequest struct {
	PuzzleID string          `json:"puzzleId"`
	Result   json.RawMessage `json:"result"`
}

func (s *Server) handlePuzzleSolve(rw http.ResponseWriter, r *http.Request, user store.User) {
	var req solveRequest
	if err := s.decodeBody(r, s.schemas.puzzleSolve, &req); err != nil {
		s.writeError(rw, err)
		return
	}
	if err := s.engine.SolvePuzzle(r.Context(), user.ID, req.PuzzleID, req.Result); err != nil {
		s.writeError(rw, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAction(rw http.ResponseWriter, r *http.Request, user store.User) {
	var req game.ActionRequest
	if err := s.decodeBody(r, s.schemas.action, &req); err != nil {
		s.writeError(rw, err)
		return
	}
	point, err := s.engine.PerformAction(r.Context(), user.ID, req)
	if err != nil {
		s.writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, pointView(point))
}

type checkInRequest struct {
	Point string `json:"point"`
}

func (s *Server) handleCheckIn(rw http.ResponseWriter, r *http.Request, user store.User) {
	var req checkInRequest
	if err := s.decodeBody(r, s.schemas.checkin, &req); err != nil {
		s.writeError(rw, err)
		return
	}
	if err := s.engine.CheckIn(r.Context(), user.ID, req.Point); err != nil {
		s.writeError(rw, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// PointView is the wire shape of a map point.
type PointView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Health     int    `json:"health"`
	MaxHealth  int    `json:"maxHealth"`
	Level      int    `json:"level"`
	AcquiredBy string `json:"acquiredBy,omitempty"`
}

func pointView(p game.Point) PointView {
	return PointView{
		ID:         p.ID,
		Name:       p.Name,
		Health:     p.Health,
		MaxHealth:  p.MaxHealth,
		Level:      p.Level,
		AcquiredBy: p.AcquiredBy,
	}
}

func (s *Server) handlePoints(rw http.ResponseWriter, r *http.Request, _ store.User) {
	points, err := s.store.Points(r.Context())
	if err != nil {
		s.writeError(rw, err)
		return
	}
	views := make([]PointView, 0, len(points))
	for _, p := range points {
		views = append(views, pointView(p))
	}
	writeJSON(rw, http.StatusOK, views)
}

func (s *Server) handleGame(rw http.ResponseWriter, r *http.Request, _ store.User) {
	g, err := s.store.Game(r.Context())
	if err != nil {
		s.writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"tick": g.Tick, "state": g.State})
}

func (s *Server) handleTickRun(rw http.ResponseWriter, r *http.Request, user store.User) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	tickNo, err := s.archiver.Run(ctx)
	if err != nil {
		s.writeError(rw, err)
		return
	}
	s.log.Printf("tick %d run by %s", tickNo, user.Name)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": tickNo})
}

func (s *Server) handleSnapshot(rw http.ResponseWriter, r *http.Request, user store.User) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	tickNo, err := s.archiver.Snapshot(ctx)
	if err != nil {
		s.writeError(rw, err)
		return
	}
	s.log.Printf("snapshot at tick %d by %s", tickNo, user.Name)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": tickNo})
}

type gameStateRequest struct {
	State string `json:"state"`
}

func (s *Server) handleGameState(rw http.ResponseWriter, r *http.Request, user store.User) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(rw, game.Errorf(game.CodeInvalidInput, "read body: %v", err))
		return
	}
	var req gameStateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(rw, game.Errorf(game.CodeInvalidInput, "malformed json: %v", err))
		return
	}
	if req.State != store.StatePlaying && req.State != store.StatePaused {
		s.writeError(rw, game.Errorf(game.CodeInvalidInput, "unknown state %q", req.State))
		return
	}
	err = s.store.Tx(r.Context(), func(tx *store.Tx) error {
		return tx.SetGameState(req.State)
	})
	if err != nil {
		s.writeError(rw, err)
		return
	}
	s.log.Printf("game state set to %s by %s", req.State, user.Name)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "state": req.State})
}

type errorBody struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func (s *Server) writeError(rw http.ResponseWriter, err error) {
	code := game.CodeOf(err)
	status := statusFor(code)

	body := errorBody{ErrorCode: string(code), Message: err.Error()}
	var ge *game.Error
	if errors.As(err, &ge) {
		body.Message = ge.Message
		if ge.RetryAfter > 0 {
			secs := int(ge.RetryAfter.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			rw.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	} else {
		// Do not leak internals to clients.
		body.Message = "internal error"
		s.log.Printf("internal error: %v", err)
	}
	writeJSON(rw, status, body)
}

func statusFor(code game.Code) int {
	switch code {
	case game.CodeInvalidInput, game.CodePuzzleTimeout, game.CodePuzzleInvalidResult:
		return http.StatusBadRequest
	case game.CodeAuthError:
		return http.StatusForbidden
	case game.CodeThrottled:
		return http.StatusTooManyRequests
	case game.CodeNotFound:
		return http.StatusNotFound
	case game.CodeConflict:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
