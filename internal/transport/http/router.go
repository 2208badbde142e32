package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter wires the REST endpoints and the attempt timer socket.
func NewRouter(attempts *AttemptHandler, timer *TimerHandler, auth Authenticator) *mux.Router {
	router := mux.NewRouter()
	router.Use(logRequests)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(auth.Middleware)

	api.HandleFunc("/quizzes/{quizID}/eligibility", attempts.Eligibility).Methods(http.MethodGet)
	api.HandleFunc("/quizzes/{quizID}/questions", attempts.Preview).Methods(http.MethodGet)
	api.HandleFunc("/quizzes/{quizID}/attempts", attempts.Start).Methods(http.MethodPost)
	api.HandleFunc("/quizzes/{quizID}/attempts", attempts.History).Methods(http.MethodGet)
	api.HandleFunc("/quizzes/{quizID}/attempts/current", attempts.Current).Methods(http.MethodGet)

	api.HandleFunc("/attempts/{attemptID}/questions", attempts.Questions).Methods(http.MethodGet)
	api.HandleFunc("/attempts/{attemptID}/answers", attempts.Answers).Methods(http.MethodGet)
	api.HandleFunc("/attempts/{attemptID}/answers/{questionID}", attempts.RecordAnswer).Methods(http.MethodPut)
	api.HandleFunc("/attempts/{attemptID}/answers/{questionID}/skip", attempts.Skip).Methods(http.MethodPost)
	api.HandleFunc("/attempts/{attemptID}/remaining", attempts.Remaining).Methods(http.MethodGet)
	api.HandleFunc("/attempts/{attemptID}/submit", attempts.Submit).Methods(http.MethodPost)
	api.HandleFunc("/attempts/{attemptID}/result", attempts.Result).Methods(http.MethodGet)

	api.HandleFunc("/ws/attempts/{attemptID}", timer.ServeWS).Methods(http.MethodGet)
	return router
}
