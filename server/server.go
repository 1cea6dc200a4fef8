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

	"github.com/cubefs/cubefs/blobstore/common/trace"

	"github.com/cubefs/catalogdb/catalog"
	"github.com/cubefs/catalogdb/registry"
	"github.com/cubefs/catalogdb/syscatalog"
)

type Config struct {
	syscatalog.Config

	CatalogConfig catalog.Config `json:"catalog_config"`
}

// Server owns the system catalog and the registry of database catalogs.
type Server struct {
	sys      *syscatalog.SysCatalog
	registry *registry.Registry
}

// NewServer opens the system catalog and the catalog of every database in it.
func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	span, ctx := trace.StartSpanFromContext(ctx, "server")
	sys, err := syscatalog.New(ctx, &cfg.Config, cfg.CatalogConfig.DataMgr, cfg.CatalogConfig.Notifier)
	if err != nil {
		return nil, err
	}
	r := registry.New(sys, registry.NewFactory(cfg.CatalogConfig))
	if err = r.OpenAll(ctx); err != nil {
		r.Close()
		return nil, err
	}
	span.Infof("catalog server started, open catalogs: %v", r.List())
	return &Server{sys: sys, registry: r}, nil
}

func (s *Server) SysCatalog() *syscatalog.SysCatalog {
	return s.sys
}

func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Close tears down every database catalog before the system catalog.
func (s *Server) Close() {
	s.registry.Close()
}
