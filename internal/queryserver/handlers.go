package queryserver

import (
	"fmt"
	"net/http"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/follownet/skymirror/internal/follows"
	"github.com/follownet/skymirror/internal/identity"
	"github.com/follownet/skymirror/internal/store"
)

func (s *server) handleAkas(w http.ResponseWriter, r *http.Request) {
	did := r.URL.Query().Get("did")
	if did == "" {
		s.badRequest(w, fmt.Errorf("missing required query parameter %q", "did"))
		return
	}

	akas, err := store.ReadTransact(s.db.Raw(), func(tx fdb.ReadTransaction) ([]string, error) {
		return identity.GetAkas(tx, s.identDirs, did)
	})
	if err != nil {
		s.internalErr(w, err)
		return
	}

	type response struct {
		Akas []string `json:"akas"`
	}
	s.jsonOK(w, &response{Akas: akas})
}

func (s *server) handleWhois(w http.ResponseWriter, r *http.Request) {
	aka := r.URL.Query().Get("aka")
	if aka == "" {
		s.badRequest(w, fmt.Errorf("missing required query parameter %q", "aka"))
		return
	}

	dids, err := store.ReadTransact(s.db.Raw(), func(tx fdb.ReadTransaction) ([]string, error) {
		return identity.GetDids(tx, s.identDirs, aka)
	})
	if err != nil {
		s.internalErr(w, err)
		return
	}

	type response struct {
		Dids []string `json:"dids"`
	}
	s.jsonOK(w, &response{Dids: dids})
}

func (s *server) handleFollowers(w http.ResponseWriter, r *http.Request) {
	did := r.URL.Query().Get("did")
	if did == "" {
		s.badRequest(w, fmt.Errorf("missing required query parameter %q", "did"))
		return
	}

	followers, err := store.ReadTransact(s.db.Raw(), func(tx fdb.ReadTransaction) ([]string, error) {
		return follows.GetFollowers(tx, s.followsDirs, did)
	})
	if err != nil {
		s.internalErr(w, err)
		return
	}

	type response struct {
		Followers []string `json:"followers"`
	}
	s.jsonOK(w, &response{Followers: followers})
}

func (s *server) handleFollowees(w http.ResponseWriter, r *http.Request) {
	did := r.URL.Query().Get("did")
	if did == "" {
		s.badRequest(w, fmt.Errorf("missing required query parameter %q", "did"))
		return
	}

	followees, err := store.ReadTransact(s.db.Raw(), func(tx fdb.ReadTransaction) ([]string, error) {
		return follows.GetFollowees(tx, s.followsDirs, did)
	})
	if err != nil {
		s.internalErr(w, err)
		return
	}

	type response struct {
		Followees []string `json:"followees"`
	}
	s.jsonOK(w, &response{Followees: followees})
}

func (s *server) handleIsFollowing(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor")
	subject := r.URL.Query().Get("subject")
	if actor == "" || subject == "" {
		s.badRequest(w, fmt.Errorf("missing required query parameters %q and %q", "actor", "subject"))
		return
	}

	following, err := store.ReadTransact(s.db.Raw(), func(tx fdb.ReadTransaction) (bool, error) {
		return follows.IsFollowing(tx, s.followsDirs, actor, subject)
	})
	if err != nil {
		s.internalErr(w, err)
		return
	}

	type response struct {
		Following bool `json:"following"`
	}
	s.jsonOK(w, &response{Following: following})
}
