package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

type user struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// StartMockUserServer runs a small JSON user API on addr.
//
//	GET  /users      list all users
//	GET  /user?id=N  fetch one user
//	POST /user       create a user from a JSON body
//
// A new user signs up every 10-30 seconds so polled results change.
func StartMockUserServer(addr string) {
	var (
		mu     sync.Mutex
		users  = []user{{ID: 123, Name: "Alice"}, {ID: 456, Name: "Bob"}}
		nextID = 789
	)
	names := []string{"Carol", "Dave", "Erin", "Frank", "Grace"}

	go func() {
		for {
			time.Sleep(time.Duration(10+rand.Intn(21)) * time.Second)
			mu.Lock()
			u := user{ID: nextID, Name: names[rand.Intn(len(names))]}
			users = append(users, u)
			nextID++
			mu.Unlock()
			slog.Info("user signed up", "id", u.ID, "name", u.Name)
		}
	}()

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)
		mu.Lock()
		snapshot := append([]user(nil), users...)
		mu.Unlock()
		writeJSON(w, snapshot)
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.URL.Query().Get("id"))
		if err != nil {
			http.Error(w, "id must be an integer", http.StatusBadRequest)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for _, u := range users {
			if u.ID == id {
				writeJSON(w, u)
				return
			}
		}
		http.Error(w, "user not found", http.StatusNotFound)
	})
	mux.HandleFunc("POST /user", func(w http.ResponseWriter, r *http.Request) {
		var u user
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		mu.Lock()
		u.ID = nextID
		nextID++
		users = append(users, u)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, u)
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
