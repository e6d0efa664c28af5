package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"csms/billing"
	"csms/internal"
	"csms/internal/config"
	"csms/metrics"
	"csms/models"
	"csms/ocpp"
	"csms/power"
	"csms/queue"
	"csms/relay"
	"csms/telegram"
	"csms/types"
	"csms/utility"
)

type CentralSystem struct {
	conf       *config.Config
	server     *Server
	logger     internal.LogHandler
	handler16  *SystemHandler
	handler201 *SystemHandlerV201
	rabbit     *queue.Rabbit
	relay      *relay.Relay
	settlement *billing.SettlementService
}

// handleIncomingMessage decodes one frame off a station link and routes it
// through the dispatch table resolved for the connection's protocol version.
func (cs *CentralSystem) handleIncomingMessage(ws *WebSocket, data []byte) error {
	stationId := ws.ID()
	message, err := utility.ParseJson(data)
	if err != nil {
		return err
	}
	frame, err := ParseFrame(message)
	if err != nil {
		return err
	}
	if frame.TypeId == CallTypeError {
		cs.logger.Warn(fmt.Sprintf("error message received from station %s: %s", stationId, string(data)))
		return nil
	}
	if frame.TypeId == CallTypeResult {
		// results of backend-initiated requests are not correlated
		cs.logger.Debug(fmt.Sprintf("result received from station %s for request %s", stationId, frame.UniqueId))
		return nil
	}

	if !frame.HasAction() {
		observeCallError(ErrorCodeProtocolError)
		return cs.server.SendCallError(ws, CreateCallError(frame.UniqueId, ErrorCodeProtocolError, "invalid action element"))
	}
	if ws.features == nil {
		observeCallError(ErrorCodeNotSupported)
		return cs.server.SendCallError(ws, CreateCallError(frame.UniqueId, ErrorCodeNotSupported, fmt.Sprintf("unsupported protocol version: %s", ws.Version())))
	}
	feature, ok := ws.features[frame.Action]
	if !ok {
		observeCallError(ErrorCodeNotImplemented)
		return cs.server.SendCallError(ws, CreateCallError(frame.UniqueId, ErrorCodeNotImplemented, fmt.Sprintf("unsupported action: %s", frame.Action)))
	}

	request, err := ocpp.ParseRawJsonRequest(frame.Payload, feature.RequestType)
	if err != nil {
		observeCallError(ErrorCodeProtocolError)
		return cs.server.SendCallError(ws, CreateCallError(frame.UniqueId, ErrorCodeProtocolError, err.Error()))
	}

	confirmation, err := feature.Handle(stationId, request)
	if err != nil {
		observeCallError(ErrorCodeInternalError)
		return cs.server.SendCallError(ws, CreateCallError(frame.UniqueId, ErrorCodeInternalError, err.Error()))
	}
	observeCall(ws.Version(), frame.Action)

	if ws.IsClosed() {
		cs.logger.FeatureEvent(frame.Action, stationId, "websocket closed, response not sent")
		return nil
	}
	return cs.server.SendResponse(ws, CreateCallResult(confirmation, frame.UniqueId))
}

func (cs *CentralSystem) Start() {
	go func() {
		if err := cs.server.Start(); err != nil {
			cs.logger.Error("websocket server failed", err)
		}
	}()
	cs.server.StartProbes()

	if cs.rabbit != nil {
		if err := cs.rabbit.Consume(queue.CdrEvents, cs.settlement.HandleRecord); err != nil {
			cs.logger.Error("settlement consumer failed", err)
		}
	}
	if cs.relay != nil {
		go cs.relay.Listen(context.Background())
	}
	go func() {
		if err := metrics.Listen(cs.conf); err != nil {
			cs.logger.Error("metrics server failed", err)
		}
	}()

	select {}
}

func NewCentralSystem(conf *config.Config) (*CentralSystem, error) {
	cs := &CentralSystem{conf: conf}

	log.Println("set time zone to " + conf.TimeZone)
	location, err := time.LoadLocation(conf.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("time zone initialization failed: %s", err)
	}

	if !conf.Mongo.Enabled {
		return nil, utility.Err("mongodb must be enabled; the station registry lives there")
	}
	database, err := internal.NewMongoClient(conf)
	if err != nil {
		return nil, fmt.Errorf("mongodb setup failed: %s", err)
	}
	log.Println("mongodb is configured and enabled")

	logService := internal.NewLogger(location)
	logService.SetDebugMode(conf.IsDebug)
	logService.SetDatabase(database)
	cs.logger = logService

	rabbit, err := queue.NewRabbit(conf, logService)
	if err != nil {
		return nil, err
	}
	if rabbit != nil {
		log.Println("rabbitmq is configured and enabled")
	}
	cs.rabbit = rabbit

	handler16 := NewSystemHandler(location, conf.Ocpp.HeartbeatInterval)
	handler16.SetDatabase(database)
	handler16.SetLogger(logService)

	handler201 := NewSystemHandlerV201(location, conf.Ocpp.HeartbeatInterval)
	handler201.SetDatabase(database)
	handler201.SetLogger(logService)

	if rabbit != nil {
		handler16.SetPublisher(rabbit)
		handler201.SetPublisher(rabbit)
	}

	if conf.Telegram.Enabled {
		telegramBot, err := telegram.NewBot(conf.Telegram.ApiKey)
		if err != nil {
			return nil, fmt.Errorf("telegram bot setup failed: %s", err)
		}
		telegramBot.SetDatabase(database)
		telegramBot.Start()
		handler16.AddEventListener(telegramBot)
		handler201.AddEventListener(telegramBot)
		log.Println("telegram bot is configured and enabled")
	}

	wsServer := NewServer(conf, logService)
	wsServer.AddSupportedSubProtocol(types.SubProtocol16)
	wsServer.AddSupportedSubProtocol(types.SubProtocol201)
	wsServer.SetDatabase(database)
	wsServer.SetMessageHandler(cs.handleIncomingMessage)
	if rabbit != nil {
		wsServer.SetDisconnectHandler(func(stationId string) {
			if err := rabbit.Publish(queue.StationStatus, models.StationStatusEvent{
				StationId: stationId,
				Status:    models.StationStatusOffline,
				Timestamp: time.Now().In(location),
			}); err != nil {
				logService.Error(fmt.Sprintf("publishing offline status of station %s", stationId), err)
			}
		})
	}

	table16 := dispatchTable16(handler16)
	table201 := dispatchTable201(handler201)
	wsServer.SetDispatchResolver(func(version string) map[string]Feature {
		return resolveDispatch(version, table16, table201)
	})
	cs.server = wsServer

	balancer := power.NewLoadBalancer(database, wsServer, logService)
	handler16.SetSmartCharging(balancer)

	tariffs := billing.NewTariffService(database, logService)
	cs.settlement = billing.NewSettlementService(database, tariffs, logService)

	commandRelay, err := relay.NewRelay(conf, wsServer, logService)
	if err != nil {
		return nil, err
	}
	if commandRelay != nil {
		log.Println("command relay is configured and enabled")
	}
	cs.relay = commandRelay

	cs.handler16 = handler16
	cs.handler201 = handler201
	return cs, nil
}
