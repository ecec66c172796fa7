package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alejzeis/duet-relay/common"

	"github.com/dgrijalva/jwt-go"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

// tokenLifetime is how long an issued diagnostics token stays valid
const tokenLifetime = 2 * time.Minute

// controlServer serves the coordinator's HTTP surface: the websocket
// endpoint the clients connect to, plus a small REST API for operator
// diagnostics. The diagnostics methods are guarded by short-lived HMAC
// tokens; the pairing core itself knows clients only by their opaque
// connection IDs.
type controlServer struct {
	coordinator *Coordinator
	secret      []byte // HMAC secret used for signing JWTs
	infoJSON    []byte // Cached bytes of the JSON for the /info response
}

func newControlServer(coordinator *Coordinator, secret []byte) *controlServer {
	infoJSON, _ := json.Marshal(common.InfoResponse{
		Software: common.SoftwareName,
		Version:  common.SoftwareVersion,
		API:      common.APIVersion,
	})

	return &controlServer{
		coordinator: coordinator,
		secret:      secret,
		infoJSON:    infoJSON,
	}
}

func (control *controlServer) router() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/ws", control.coordinator.handleSocket)
	router.HandleFunc("/info", control.handleInfo).Methods("GET")
	router.HandleFunc("/login/{name}", control.handleLogin).Methods("POST")
	router.HandleFunc("/stats/{token}", control.handleStats).Methods("GET")
	return router
}

func (control *controlServer) verifyToken(tokenStr string) bool {
	decodedToken, err := jwt.ParseWithClaims(tokenStr, &jwt.StandardClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Don't forget to validate the alg is what you expect:
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("Unexpected signing method: %v", token.Header["alg"])
		}

		return control.secret, nil
	})

	if err != nil {
		log.WithError(err).Warn("Failed to decode token, probably invalid signature")
		return false
	}

	if claims, ok := decodedToken.Claims.(*jwt.StandardClaims); ok && decodedToken.Valid {
		return !time.Now().After(time.Unix(claims.ExpiresAt, 0))
	}

	return false
}

// StartControlServer begins handling HTTP requests for the websocket
// endpoint and the REST API, called by main function
func StartControlServer(config *ini.File, coordinator *Coordinator) {
	log.Info("Starting coordinator HTTP server...")

	portKey, err := config.Section("server").GetKey("port")
	if err != nil {
		log.WithError(err).Error("Failed to get server port from configuration file.")
		panic(err)
	}
	port, err2 := portKey.Int()
	if err2 != nil {
		log.WithError(err2).Error("Failed to get server port as integer from configuration file.")
		panic(err2)
	}

	secretKey, err := config.Section("server").GetKey("secret")
	if err != nil {
		log.WithError(err).Error("Failed to get server secret from configuration file.")
		panic(err)
	}

	control := newControlServer(coordinator, []byte(secretKey.String()))

	log.WithError(http.ListenAndServe(":"+strconv.Itoa(port), control.router())).WithField("port", port).Error("Failed to start listening")
}

// Returns server information such as the software version and REST API version
func (control *controlServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(control.infoJSON)
}

// Issues a short-lived JWT granting access to the diagnostics methods.
// HTTP Responses:
//   - 400 Bad Request: Client omitted the name variable in the path (/login/[name])
//   - 500 Internal Server Error: Failed to encode the JWT
//   - 201 Created: Returns a JWT for use with the diagnostics methods
func (control *controlServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]

	if name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	issuedTime := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.MapClaims{
		"iss": common.SoftwareName,
		"sub": name,
		"iat": issuedTime.Unix(),
		"exp": issuedTime.Add(tokenLifetime).Unix(),
	})

	signedToken, err := t.SignedString(control.secret)
	if err != nil {
		log.WithField("name", name).WithError(err).Error("Failed to encode JWT for a login request.")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	log.WithFields(log.Fields{
		"name":    name,
		"address": r.RemoteAddr,
	}).Info("Issued diagnostics token")

	w.WriteHeader(http.StatusCreated)
	fmt.Fprint(w, signedToken)
}

// Returns a snapshot of the coordinator's matching state.
// HTTP Responses:
//   - 400 Bad Request: Client omitted the token variable in the path (/stats/[token])
//   - 403 Forbidden: JWT wasn't valid
//   - 200 OK: Success, returns StatsResponse struct (JSON)
func (control *controlServer) handleStats(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	token := vars["token"]
	// Verify REST parameters
	if token == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !control.verifyToken(token) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	connections, randomWaiting, waitingRooms, pairs := control.coordinator.Stats()
	data, err := json.Marshal(common.StatsResponse{
		Connections:   connections,
		RandomWaiting: randomWaiting,
		WaitingRooms:  waitingRooms,
		Pairs:         pairs,
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		log.WithError(err).Error("Failed to encode response json for /stats")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
