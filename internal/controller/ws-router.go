package controller

import (
	"github.com/watchtogether/server/pkg/wsrouter"
)

func (c *controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.SetSender(c.storeService.Send)
	mux.Use(c.wsLoggingMw)

	mux.Handle("ALIVE", c.handleAlive)

	mux.Handle("SUBSCRIBE", c.handleSubscribe)
	mux.Handle("READ", c.handleRead)

	mux.Handle("WRITE", c.handleWrite)
	mux.Handle("MERGE", c.handleMerge)
	mux.Handle("APPEND", c.handleAppend)
	mux.Handle("REMOVE", c.handleRemove)

	mux.Handle("ON_DISCONNECT", c.handleOnDisconnect)

	return mux
}
