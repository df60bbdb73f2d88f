package main

import (
	"context"

	"github.com/spookfox-dev/spookfox-go-broker/internal/apps/tabs"
	"github.com/spookfox-dev/spookfox-go-broker/internal/broker"
	"github.com/spookfox-dev/spookfox-go-broker/internal/browser"
	"github.com/spookfox-dev/spookfox-go-broker/internal/config"
	"github.com/spookfox-dev/spookfox-go-broker/internal/event"
	"github.com/spookfox-dev/spookfox-go-broker/internal/logger"
	"github.com/spookfox-dev/spookfox-go-broker/internal/transport"
	"github.com/spookfox-dev/spookfox-go-broker/internal/utils"
)

func main() {
	cfg, err := config.ReadConfig()
	if err != nil {
		logger.FatalF("Error occured while reading config %v", err)
		return
	}
	loggerCallback := logger.Init()
	logger.Debug("Application initializing...")
	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)
	defer cleaner.Clean()

	endpoint := browser.NewEndpoint(cfg.Browser.ListenAddr, cfg.Browser.AllowedOrigins)
	endpoint.Start()
	cleaner.Add(browser.NewCloseCallback(endpoint))

	ctx, cancel := context.WithCancel(context.Background())

	dialer := &transport.SocketDialer{
		Network: cfg.Peer.Network,
		Address: cfg.Peer.Address,
	}

	var b *broker.Broker
	connector := transport.NewConnector(
		dialer,
		utils.ParseStringTime(cfg.Peer.ReconnectInitial),
		utils.ParseStringTime(cfg.Peer.ReconnectMax),
		func(status transport.Status) {
			b.OnStatus(status)
		},
	)
	cleaner.Add(transport.NewCloseCallback(cancel, connector))

	b = broker.New(connector, endpoint, utils.ParseStringTime(cfg.Peer.RequestTimeout))
	b.RegisterApp(tabs.New(endpoint))
	for _, name := range cfg.Apps {
		if err := b.EnableApp(ctx, name); err != nil {
			logger.FatalF("Error occured while enabling app %s, details: %v", name, err)
			return
		}
	}

	go connector.Run(ctx)
	b.Run(ctx)
}
