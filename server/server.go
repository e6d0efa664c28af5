package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"csms/internal"
	"csms/internal/config"
	"csms/models"
	"csms/ocpp"
	"csms/types"
	"csms/utility"
)

// close codes for handshake rejections
const (
	CloseProtocolViolation = 1002
	CloseUnknownStation    = 4004
	CloseUnauthorized      = 4001
)

type Server struct {
	conf           *config.Listen
	httpServer     *http.Server
	upgrader       websocket.Upgrader
	registry       *Registry
	database       internal.Database
	logger         internal.LogHandler
	messageHandler func(ws *WebSocket, data []byte) error
	dispatchFor    func(version string) map[string]Feature
	onDisconnect   func(stationId string)
	probeInterval  time.Duration
}

func NewServer(conf *config.Config, logger internal.LogHandler) *Server {
	server := Server{
		conf:          &conf.Listen,
		upgrader:      websocket.Upgrader{Subprotocols: []string{}},
		registry:      NewRegistry(),
		logger:        logger,
		probeInterval: time.Duration(conf.Ocpp.ProbeInterval) * time.Second,
	}
	router := httprouter.New()
	router.GET(fmt.Sprintf("/%s/:version/:id", conf.Listen.Namespace), server.handleWsRequest)
	server.httpServer = &http.Server{
		Handler: router,
	}
	return &server
}

func (s *Server) AddSupportedSubProtocol(proto string) {
	for _, sub := range s.upgrader.Subprotocols {
		if sub == proto {
			return
		}
	}
	s.upgrader.Subprotocols = append(s.upgrader.Subprotocols, proto)
}

func (s *Server) SetMessageHandler(handler func(ws *WebSocket, data []byte) error) {
	s.messageHandler = handler
}

func (s *Server) SetDatabase(database internal.Database) {
	s.database = database
}

func (s *Server) SetDispatchResolver(resolver func(version string) map[string]Feature) {
	s.dispatchFor = resolver
}

func (s *Server) SetDisconnectHandler(handler func(stationId string)) {
	s.onDisconnect = handler
}

func (s *Server) Registry() *Registry {
	return s.registry
}

func (s *Server) handleWsRequest(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	version := params.ByName("version")
	id := params.ByName("id")
	s.logger.Debug(fmt.Sprintf("connection initiated from remote %s for %s ocpp %s", r.RemoteAddr, id, version))

	s.upgrader.CheckOrigin = func(r *http.Request) bool {
		return true
	}

	clientSubProto := websocket.Subprotocols(r)
	requestedProto := ""
	for _, proto := range clientSubProto {
		if utility.Contains(s.upgrader.Subprotocols, proto) {
			requestedProto = proto
			break
		}
	}
	responseHeader := http.Header{}
	if requestedProto != "" {
		responseHeader.Add("Sec-WebSocket-Protocol", requestedProto)
	}

	username, password, hasAuth := r.BasicAuth()

	conn, err := s.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		s.logger.Error("upgrade failed", err)
		return
	}
	ws := &WebSocket{
		conn:    conn,
		id:      id,
		version: version,
		alive:   true,
	}

	if !utility.Contains(types.SupportedVersions, version) {
		s.logger.Warn(fmt.Sprintf("rejecting %s: unsupported protocol version %s", id, version))
		ws.CloseWithCode(CloseProtocolViolation, "unsupported protocol version")
		return
	}

	station, err := s.database.GetStation(id)
	if err != nil {
		s.logger.Error(fmt.Sprintf("station lookup failed for %s", id), err)
		ws.CloseWithCode(websocket.CloseInternalServerErr, "station lookup failed")
		return
	}
	if station == nil {
		s.logger.Warn(fmt.Sprintf("rejecting %s: unknown station", id))
		ws.CloseWithCode(CloseUnknownStation, "unknown station")
		return
	}
	if station.Secret != "" {
		if !hasAuth || username != id || password != station.Secret {
			s.logger.Warn(fmt.Sprintf("rejecting %s: invalid credentials", id))
			ws.CloseWithCode(CloseUnauthorized, "unauthorized")
			return
		}
	}

	if s.dispatchFor != nil {
		ws.features = s.dispatchFor(version)
	}

	conn.SetPongHandler(func(string) error {
		ws.MarkAlive()
		return nil
	})

	if old := s.registry.Register(ws); old != nil {
		s.logger.Warn(fmt.Sprintf("station %s reconnected, closing superseded connection", id))
		old.CloseWithCode(websocket.CloseNormalClosure, "superseded by a new connection")
	}
	metricsConnections.Set(float64(s.registry.Count()))

	if err = s.database.UpdateStationAddress(id, r.RemoteAddr); err != nil {
		s.logger.Error(fmt.Sprintf("updating address of station %s", id), err)
	}
	if err = s.database.UpdateStationStatus(id, models.StationStatusOnline); err != nil {
		s.logger.Error(fmt.Sprintf("updating status of station %s", id), err)
	}

	s.logger.Debug(fmt.Sprintf("station %s connected with ocpp %s", id, version))
	go s.messageReader(ws)
}

func (s *Server) messageReader(ws *WebSocket) {
	conn := ws.conn
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug(fmt.Sprintf("station %s leaving session", ws.id))
			} else {
				s.logger.Debug(fmt.Sprintf("station %s closing session; %s", ws.id, err))
			}
			s.dropConnection(ws)
			return
		}
		s.logger.RawDataEvent("IN", string(message))
		if s.messageHandler != nil {
			if err = s.messageHandler(ws, message); err != nil {
				s.logger.Error(fmt.Sprintf("handling message from %s", ws.id), err)
				continue
			}
		}
	}
}

func (s *Server) dropConnection(ws *WebSocket) {
	ws.Terminate()
	// a superseded connection must not mark the live replacement offline
	if !s.registry.Remove(ws) {
		return
	}
	metricsConnections.Set(float64(s.registry.Count()))
	if err := s.database.UpdateStationStatus(ws.id, models.StationStatusOffline); err != nil {
		s.logger.Error(fmt.Sprintf("updating status of station %s", ws.id), err)
	}
	if s.onDisconnect != nil {
		s.onDisconnect(ws.id)
	}
}

// StartProbes pings every registered connection on a fixed interval and
// evicts the ones that missed a pong since the previous round.
func (s *Server) StartProbes() {
	go func() {
		ticker := time.NewTicker(s.probeInterval)
		defer ticker.Stop()
		for range ticker.C {
			s.probeConnections()
		}
	}()
}

func (s *Server) probeConnections() {
	for _, ws := range s.registry.All() {
		if ws.Expired() {
			s.logger.Warn(fmt.Sprintf("station %s missed liveness probe, terminating", ws.id))
			s.dropConnection(ws)
			continue
		}
		if err := ws.Ping(); err != nil {
			s.logger.Warn(fmt.Sprintf("ping to station %s failed; %s", ws.id, err))
			s.dropConnection(ws)
		}
	}
}

func (s *Server) Start() error {
	if s.conf == nil {
		return utility.Err("configuration not loaded")
	}
	serverAddress := fmt.Sprintf("%s:%s", s.conf.BindIP, s.conf.Port)
	s.logger.Debug(fmt.Sprintf("starting server on %s", serverAddress))
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}
	if s.conf.TLS {
		if s.conf.SecurityProfile >= 3 {
			tlsConfig, err := s.mutualTlsConfig()
			if err != nil {
				return err
			}
			s.httpServer.TLSConfig = tlsConfig
		}
		s.logger.Debug("starting wss TLS server")
		err = s.httpServer.ServeTLS(listener, s.conf.CertFile, s.conf.KeyFile)
	} else {
		s.logger.Debug("starting ws server")
		err = s.httpServer.Serve(listener)
	}
	return err
}

// mutualTlsConfig requires a client certificate signed by the configured CA.
func (s *Server) mutualTlsConfig() (*tls.Config, error) {
	caCert, err := os.ReadFile(s.conf.CAFile)
	if err != nil {
		return nil, err
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, utility.Err("CA certificate could not be parsed")
	}
	return &tls.Config{
		ClientCAs:  caPool,
		ClientAuth: tls.RequireAndVerifyClientCert,
	}, nil
}

func (s *Server) SendResponse(ws *WebSocket, response *CallResult) error {
	data, err := response.MarshalJSON()
	if err != nil {
		s.logger.Error("error encoding response", err)
		return err
	}
	s.logger.RawDataEvent("OUT", string(data))
	if err = ws.WriteMessage(data); err != nil {
		s.logger.Error("error sending response", err)
	}
	return err
}

func (s *Server) SendCallError(ws *WebSocket, callError *CallError) error {
	data, err := callError.MarshalJSON()
	if err != nil {
		s.logger.Error("error encoding call error", err)
		return err
	}
	s.logger.RawDataEvent("OUT", string(data))
	if err = ws.WriteMessage(data); err != nil {
		s.logger.Error("error sending call error", err)
	}
	return err
}

// SendRequest sends a typed backend-initiated request to a station.
func (s *Server) SendRequest(stationId string, request ocpp.Request) (string, error) {
	return s.SendCommand(stationId, request.GetFeatureName(), request)
}

// SendCommand synthesizes a Call frame for a backend-initiated request and
// returns the generated request id. No response correlation is kept.
func (s *Server) SendCommand(stationId string, action string, payload interface{}) (string, error) {
	ws := s.registry.Get(stationId)
	if ws == nil {
		return "", utility.Err(fmt.Sprintf("no active connection for station %s", stationId))
	}
	callRequest := CreateCallRequest(action, payload)
	data, err := callRequest.MarshalJSON()
	if err != nil {
		return "", err
	}
	s.logger.RawDataEvent("OUT", string(data))
	if err = ws.WriteMessage(data); err != nil {
		return "", err
	}
	return callRequest.UniqueId, nil
}
