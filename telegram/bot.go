package telegram

import (
	"fmt"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"csms/internal"
	"csms/models"
)

// TgBot pushes session and station events to subscribed operators.
// The subscriptions map is shared between the update and event pumps.
type TgBot struct {
	api      *tgbotapi.BotAPI
	database internal.Database
	event    chan MessageContent
	send     chan MessageContent

	mu            sync.Mutex
	subscriptions map[int]models.UserSubscription
}

type MessageContent struct {
	ChatID int64
	Text   string
}

func NewBot(apiKey string) (*TgBot, error) {
	tgBot := &TgBot{
		subscriptions: make(map[int]models.UserSubscription),
		event:         make(chan MessageContent, 100),
		send:          make(chan MessageContent, 100),
	}
	api, err := tgbotapi.NewBotAPI(apiKey)
	if err != nil {
		return nil, err
	}
	tgBot.api = api
	return tgBot, nil
}

// SetDatabase attach database service
func (b *TgBot) SetDatabase(database internal.Database) {
	b.database = database
}

func (b *TgBot) Start() {
	if b.database != nil {
		subscriptions, err := b.database.GetSubscriptions()
		if err != nil {
			log.Printf("bot: error getting subscriptions: %v", err)
		} else {
			for _, subscription := range subscriptions {
				b.addSubscriber(subscription)
			}
		}
	}
	go b.sendPump()
	go b.eventPump()
	go b.updatesPump()
}

func (b *TgBot) addSubscriber(subscription models.UserSubscription) {
	b.mu.Lock()
	b.subscriptions[subscription.UserID] = subscription
	b.mu.Unlock()
}

func (b *TgBot) removeSubscriber(userId int) {
	b.mu.Lock()
	delete(b.subscriptions, userId)
	b.mu.Unlock()
}

func (b *TgBot) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscriptions)
}

// subscribers returns a snapshot so the event pump never iterates the map
// while the updates pump mutates it.
func (b *TgBot) subscribers() []models.UserSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot := make([]models.UserSubscription, 0, len(b.subscriptions))
	for _, subscription := range b.subscriptions {
		snapshot = append(snapshot, subscription)
	}
	return snapshot
}

// Start listening for updates
func (b *TgBot) updatesPump() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := b.api.GetUpdatesChan(u)
	if err != nil {
		log.Printf("bot: error getting updates: %v", err)
		return
	}
	for update := range updates {
		if update.Message == nil {
			continue
		}
		if !update.Message.IsCommand() {
			continue
		}
		switch update.Message.Command() {
		case "start":
			subscription := models.UserSubscription{
				UserID:           update.Message.From.ID,
				User:             update.Message.From.UserName,
				SubscriptionType: "status",
			}
			b.addSubscriber(subscription)
			msg := fmt.Sprintf("Hello *%v*, you are now subscribed to updates", update.Message.From.UserName)
			if b.database != nil {
				if err := b.database.AddSubscription(&subscription); err != nil {
					log.Printf("bot: error adding subscription: %v", err)
					msg = fmt.Sprintf("Error adding subscription:\n `%v`", err)
				}
			}
			b.send <- MessageContent{ChatID: update.Message.Chat.ID, Text: msg}
		case "stop":
			b.removeSubscriber(update.Message.From.ID)
			if b.database != nil {
				if err := b.database.DeleteSubscription(&models.UserSubscription{UserID: update.Message.From.ID}); err != nil {
					log.Printf("bot: error deleting subscription: %v", err)
				}
			}
			b.send <- MessageContent{ChatID: update.Message.Chat.ID, Text: "Your subscription has been removed"}
		case "status":
			msg := fmt.Sprintf("Active subscriptions: %v", b.subscriberCount())
			b.send <- MessageContent{ChatID: update.Message.Chat.ID, Text: msg}
		}
	}
}

// eventPump sending events to all subscribers
func (b *TgBot) eventPump() {
	for {
		if event, ok := <-b.event; ok {
			for _, subscription := range b.subscribers() {
				b.sendMessage(int64(subscription.UserID), event.Text)
			}
		}
	}
}

// sendPump sending messages to users
func (b *TgBot) sendPump() {
	for {
		if event, ok := <-b.send; ok {
			b.sendMessage(event.ChatID, event.Text)
		}
	}
}

// sendMessage common routine to send a message via bot API
func (b *TgBot) sendMessage(id int64, text string) {
	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = "MarkdownV2"
	_, err := b.api.Send(msg)
	if err != nil {
		// maybe error was while parsing, so we can send a message about this error
		msg = tgbotapi.NewMessage(id, fmt.Sprintf("Error: %v", err))
		_, err = b.api.Send(msg)
		if err != nil {
			log.Printf("bot: error sending message: %v", err)
		}
	}
}

func (b *TgBot) OnStatusNotification(event *internal.EventMessage) {
	if event.ConnectorId == 0 {
		// don`t send status updates for the station itself, only for connectors
		return
	}
	msg := fmt.Sprintf("*%v*: Connector %v: `%v`\n", event.StationId, event.ConnectorId, event.Status)
	if event.Info != "" {
		msg += fmt.Sprintf("%v\n", sanitize(event.Info))
	}
	b.event <- MessageContent{Text: msg}
}

func (b *TgBot) OnSessionStart(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: Connector %v: `%v`\n", event.StationId, event.ConnectorId, event.Status)
	msg += fmt.Sprintf("Transaction ID: %v START\n", event.TransactionId)
	msg += fmt.Sprintf("User: %v\n", event.Username)
	msg += fmt.Sprintf("ID Tag: %v\n", event.IdTag)
	b.event <- MessageContent{Text: msg}
}

func (b *TgBot) OnSessionStop(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: `%v`\n", event.StationId, event.Status)
	msg += fmt.Sprintf("Transaction ID: %v STOP\n", event.TransactionId)
	msg += fmt.Sprintf("User: %v\n", event.Username)
	msg += fmt.Sprintf("ID Tag: %v\n", event.IdTag)
	if event.Info != "" {
		msg += fmt.Sprintf("Info: %v\n", sanitize(event.Info))
	}
	b.event <- MessageContent{Text: msg}
}

func (b *TgBot) OnAuthorize(event *internal.EventMessage) {
	msg := fmt.Sprintf("*%v*: user: `%v`\n", event.StationId, event.IdTag)
	msg += fmt.Sprintf("Auth status: %v\n", event.Status)
	b.event <- MessageContent{Text: msg}
}

func sanitize(input string) string {
	// Define a list of reserved characters that need to be escaped
	reservedChars := "\\`*_{}[]()#+-.!|"

	sanitized := ""
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized += "\\" + string(char)
		} else {
			sanitized += string(char)
		}
	}
	return sanitized
}
