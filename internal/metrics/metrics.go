// Package metrics exposes Prometheus instrumentation for the bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	gamesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "svoyak_games_active",
		Help: "Current number of running games",
	})

	queueWaiting = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "svoyak_queue_waiting",
		Help: "Current number of players waiting in the matchmaking queue",
	})

	gamesStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "svoyak_games_started_total",
		Help: "Total number of games started",
	})

	gamesFinished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "svoyak_games_finished_total",
		Help: "Total number of games finished with ratings applied",
	})

	gamesAborted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "svoyak_games_aborted_total",
		Help: "Total number of games aborted without rating application",
	})

	messagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "svoyak_messages_sent_total",
		Help: "Total number of messages delivered to Telegram",
	})

	sendRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "svoyak_send_retries_total",
		Help: "Total number of retried Telegram API calls",
	})

	sendsGaveUp = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "svoyak_sends_gave_up_total",
		Help: "Total number of sends abandoned on a permanent API error",
	})

	updatesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "svoyak_updates_received_total",
		Help: "Total number of updates received from Telegram",
	})
)

func init() {
	prometheus.MustRegister(gamesActive)
	prometheus.MustRegister(queueWaiting)
	prometheus.MustRegister(gamesStarted)
	prometheus.MustRegister(gamesFinished)
	prometheus.MustRegister(gamesAborted)
	prometheus.MustRegister(messagesSent)
	prometheus.MustRegister(sendRetries)
	prometheus.MustRegister(sendsGaveUp)
	prometheus.MustRegister(updatesReceived)
}

func SetGamesActive(n int)  { gamesActive.Set(float64(n)) }
func SetQueueWaiting(n int) { queueWaiting.Set(float64(n)) }

func IncGameStarted()  { gamesStarted.Inc() }
func IncGameFinished() { gamesFinished.Inc() }
func IncGameAborted()  { gamesAborted.Inc() }

func IncMessageSent()    { messagesSent.Inc() }
func IncSendRetry()      { sendRetries.Inc() }
func IncSendGaveUp()     { sendsGaveUp.Inc() }
func IncUpdateReceived() { updatesReceived.Inc() }

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
