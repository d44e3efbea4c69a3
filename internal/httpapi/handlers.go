package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ducktracker/server/internal/session"
	"github.com/ducktracker/server/internal/shareid"
)

// handleCreate implements POST /api/create.php: `usr,pwd,mod,lid,dur,int`
// → `OK\n<session_id>\n<share_link>\n<share_id>\n`. Grounded on
// original_source/handlers.rs's create_session for the response shape.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	usr := r.FormValue("usr")
	pwd := r.FormValue("pwd")
	if !s.engine.Authenticate(usr, pwd) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// mod/int are accepted for request-contract parity with existing
	// publishers but are not wired to any behavior; see DESIGN.md.
	_ = r.FormValue("mod")
	_ = r.FormValue("int")

	lid := r.FormValue("lid")
	var generatedID string
	tags, opts, err := shareid.Parse(lid, func() string {
		if generatedID == "" {
			generatedID = shareid.NewID(8)
		}
		return generatedID
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	shareIDToken := strings.TrimSpace(lid)
	if shareIDToken == "" {
		shareIDToken = generatedID
	}

	expireIn := s.defaultExpireDuration
	if dur := r.FormValue("dur"); dur != "" {
		secs, err := strconv.ParseInt(dur, 10, 64)
		if err != nil {
			http.Error(w, "dur must be an integer number of seconds", http.StatusBadRequest)
			return
		}
		expireIn = time.Duration(secs) * time.Second
	}

	sessionID := session.SessionID(shareid.NewID(16))
	s.engine.AddSession(session.CreateParams{
		SessionID: sessionID,
		Tags:      tags,
		Options:   opts,
		ExpiresAt: time.Now().Add(expireIn),
	})

	shareLink := fmt.Sprintf("%s://%s/%s", s.scheme, s.serverName, shareIDToken)

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "OK\n%s\n%s\n%s\n", sessionID, shareLink, shareIDToken)
}

// handleStop implements POST /api/stop.php: `sid,lid?` → `OK\n`.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	// lid is accepted for request-contract parity; stop_session always
	// acts on the full session identified by sid.
	_ = r.FormValue("lid")

	sid := session.SessionID(r.FormValue("sid"))
	if err := s.engine.StopSession(sid); err != nil {
		http.Error(w, "Session not found.", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "OK\n")
}

// handlePost implements POST /api/post.php:
// `sid,prv?,time,lat,lon,acc?,spd?` → `OK\n<public_url>?<ids>\n`.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	sid := session.SessionID(r.FormValue("sid"))

	lat, err := strconv.ParseFloat(r.FormValue("lat"), 64)
	if err != nil {
		http.Error(w, "lat must be a number", http.StatusBadRequest)
		return
	}
	lon, err := strconv.ParseFloat(r.FormValue("lon"), 64)
	if err != nil {
		http.Error(w, "lon must be a number", http.StatusBadRequest)
		return
	}
	t, err := strconv.ParseFloat(r.FormValue("time"), 64)
	if err != nil {
		http.Error(w, "time must be a number", http.StatusBadRequest)
		return
	}

	point := session.Point{Lat: lat, Lon: lon, Time: t}
	if v := r.FormValue("acc"); v != "" {
		acc, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "acc must be a number", http.StatusBadRequest)
			return
		}
		point.Accuracy = &acc
	}
	if v := r.FormValue("spd"); v != "" {
		spd, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "spd must be a number", http.StatusBadRequest)
			return
		}
		point.Speed = &spd
	}
	if v := r.FormValue("prv"); v != "" {
		prv, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "prv must be an integer", http.StatusBadRequest)
			return
		}
		point.Provider = prv
	}

	err = s.engine.AddLocation(session.LocationParams{SessionID: sid, Point: point, Now: time.Now()})
	switch err {
	case nil:
		// public_url is a literal placeholder, not derived from Host or
		// config — see DESIGN.md's Open Question disposition.
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "OK\nhttp://localhost?\n")
	case session.ErrNoSuchSession:
		http.Error(w, "Session not found.", http.StatusNotFound)
	case session.ErrSessionExpired:
		http.Error(w, "Session has expired.", http.StatusGone)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string `json:"token"`
	Version string `json:"version"`
}

// handleLogin implements POST /api/login: JSON {username,password} →
// JSON {token, version} or 401.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed JSON body", http.StatusBadRequest)
		return
	}

	token, ok := s.engine.CreateToken(req.Username, req.Password)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loginResponse{Token: token, Version: s.version})
}
