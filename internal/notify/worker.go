// Package notify fans spoken feedback and web push notifications out
// through a small worker pool. Delivery failures are logged and never
// surface back into the charge flow.
package notify

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"laundry-pay-backend/internal/ha"
	"laundry-pay-backend/internal/model"
)

// Sender delivers one web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// webPushSender is the real Sender backed by the webpush library.
type webPushSender struct{}

func (webPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// TTSSettings selects the Home Assistant TTS service and target player.
type TTSSettings struct {
	Service     string
	MediaPlayer string
}

type jobKind int

const (
	jobSpeak jobKind = iota
	jobCycleStarted
	jobCycleFinished
)

type job struct {
	kind    jobKind
	text    string
	machine int
	minutes int
}

// Pool manages the notification workers.
type Pool struct {
	size    int
	jobs    chan job
	db      *gorm.DB
	ha      *ha.Client
	tts     TTSSettings
	webpush *webpush.Options
	sender  Sender
}

// NewPool creates a worker pool. The HA client and webpush options may
// each be nil when that channel is not configured.
func NewPool(size int, db *gorm.DB, haClient *ha.Client, tts TTSSettings, webpushOptions *webpush.Options) *Pool {
	if size <= 0 {
		size = 2
	}
	return &Pool{
		size:    size,
		jobs:    make(chan job, size*4),
		db:      db,
		ha:      haClient,
		tts:     tts,
		webpush: webpushOptions,
		sender:  webPushSender{},
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	log.Printf("notify: worker %d started", id)
	for {
		select {
		case j := <-p.jobs:
			switch j.kind {
			case jobSpeak:
				p.speak(ctx, j.text)
			case jobCycleStarted:
				payload := fmt.Sprintf("Machine %d started a %d minute cycle.", j.machine, j.minutes)
				p.pushToSubscribers(ctx, j.machine, []byte(payload))
			case jobCycleFinished:
				payload := fmt.Sprintf("Machine %d has finished its cycle.", j.machine)
				p.pushToSubscribers(ctx, j.machine, []byte(payload))
			}
		case <-ctx.Done():
			log.Printf("notify: worker %d shutting down", id)
			return
		}
	}
}

// enqueue never blocks; a full queue drops the notification.
func (p *Pool) enqueue(j job) {
	select {
	case p.jobs <- j:
	default:
		log.Printf("notify: queue full, dropping notification")
	}
}

// Speak queues a TTS announcement.
func (p *Pool) Speak(text string) {
	p.enqueue(job{kind: jobSpeak, text: text})
}

// CycleStarted queues web push notifications to the machine's subscribers.
func (p *Pool) CycleStarted(machine, minutes int) {
	p.enqueue(job{kind: jobCycleStarted, machine: machine, minutes: minutes})
}

// CycleFinished queues web push notifications when a machine's cycle ends.
func (p *Pool) CycleFinished(machine int) {
	p.enqueue(job{kind: jobCycleFinished, machine: machine})
}

func (p *Pool) speak(ctx context.Context, text string) {
	if p.ha == nil || !p.ha.Configured() {
		return
	}
	if err := p.ha.Speak(ctx, text, p.tts.Service, p.tts.MediaPlayer); err != nil {
		log.Printf("notify: tts failed: %v", err)
	}
}

func (p *Pool) pushToSubscribers(ctx context.Context, machine int, payload []byte) {
	if p.db == nil || p.webpush == nil {
		return
	}

	var subscriptions []model.PushSubscription
	err := p.db.WithContext(ctx).
		Joins("JOIN subscribed_machines sm ON sm.endpoint = push_subscriptions.endpoint").
		Where("sm.machine_number = ?", machine).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("notify: fetching subscriptions for machine %d: %v", machine, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	log.Printf("notify: sending %d push notifications for machine %d", len(subscriptions), machine)
	for _, sub := range subscriptions {
		p.sendPush(ctx, sub, payload)
	}
}

func (p *Pool) sendPush(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := p.sender.Send(payload, wpSub, p.webpush)
	if err != nil {
		log.Printf("notify: push to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("notify: subscription %s expired, deleting", sub.Endpoint)
		if err := p.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("notify: deleting expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
