// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/profile"
	"github.com/cubefs/cubefs/blobstore/common/rpc"
	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apierrors "github.com/cubefs/catalogdb/errors"
	"github.com/cubefs/catalogdb/metrics"
)

const (
	defaultShutdownTimeoutS      = 10
	defaultReadRequestTimeoutS   = 30
	defaultWriteResponseTimeoutS = 30
)

type HttpServer struct {
	httpServer *http.Server

	*Server
}

func NewHttpServer(server *Server) *HttpServer {
	return &HttpServer{Server: server}
}

func (h *HttpServer) Serve(addr string) {
	ph := profile.NewProfileHandler(addr)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      rpc.MiddlewareHandlerWith(h.newHandler(), ph),
		ReadTimeout:  defaultReadRequestTimeoutS * time.Second,
		WriteTimeout: defaultWriteResponseTimeoutS * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server exits:", err)
		}
	}()
	h.httpServer = httpServer

	log.Info("http server is running at:", addr)
}

func (h *HttpServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeoutS*time.Second)
	defer cancel()

	h.httpServer.Shutdown(ctx)
}

func (h *HttpServer) newHandler() *rpc.Router {
	metricsHandler := promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})

	rpc.GET("/stats", h.Stats)
	rpc.GET("/databases", h.Databases)
	rpc.GET("/tables", h.Tables)
	rpc.GET("/dashboards", h.Dashboards)
	rpc.GET("/metrics", func(c *rpc.Context) {
		metricsHandler.ServeHTTP(c.Writer, c.Request)
	})

	return rpc.DefaultRouter
}

type StatsResponse struct {
	Databases   int      `json:"databases"`
	OpenCatalog []string `json:"open_catalogs"`
	Privileges  bool     `json:"check_privileges"`
}

func (h *HttpServer) Stats(c *rpc.Context) {
	c.RespondJSON(&StatsResponse{
		Databases:   len(h.sys.GetAllDBMetadata()),
		OpenCatalog: h.registry.List(),
		Privileges:  h.sys.PrivilegesOn(),
	})
}

func (h *HttpServer) Databases(c *rpc.Context) {
	c.RespondJSON(h.sys.GetAllDBMetadata())
}

func (h *HttpServer) Tables(c *rpc.Context) {
	cat, err := h.registry.OpenCatalog(c.Request.Context(), c.Request.URL.Query().Get("db"))
	if err != nil {
		c.RespondError(httpError(err))
		return
	}
	c.RespondJSON(cat.GetAllTableMetadata())
}

func (h *HttpServer) Dashboards(c *rpc.Context) {
	cat, err := h.registry.OpenCatalog(c.Request.Context(), c.Request.URL.Query().Get("db"))
	if err != nil {
		c.RespondError(httpError(err))
		return
	}
	c.RespondJSON(cat.GetAllDashboards())
}

// httpError maps the kind of a catalog error to its status code.
func httpError(err error) *rpc.Error {
	switch {
	case apierrors.Is(err, apierrors.ErrNotFound):
		return rpc.NewError(http.StatusNotFound, "NotFound", err)
	case apierrors.Is(err, apierrors.ErrAlreadyExists):
		return rpc.NewError(http.StatusConflict, "AlreadyExists", err)
	case apierrors.Is(err, apierrors.ErrPermissionDenied):
		return rpc.NewError(http.StatusForbidden, "PermissionDenied", err)
	case apierrors.Is(err, apierrors.ErrInvalidArgument):
		return rpc.NewError(http.StatusBadRequest, "InvalidArgument", err)
	default:
		return rpc.NewError(http.StatusInternalServerError, "InternalError", err)
	}
}
