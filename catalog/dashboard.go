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

package catalog

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	apierrors "github.com/cubefs/catalogdb/errors"
	"github.com/cubefs/catalogdb/idgenerator"
	"github.com/cubefs/catalogdb/privilege"
	"github.com/cubefs/catalogdb/proto"
)

const linkTokenLen = 8

func updateTime() string {
	return time.Now().UTC().Format(proto.TimeLayout)
}

// CreateDashboard saves the dashboard under its owner and name, an existing one is
// overwritten and keeps its id. A new dashboard is granted to its owner.
func (c *Catalog) CreateDashboard(ctx context.Context, in *proto.DashboardDescriptor) (int32, error) {
	span := trace.SpanFromContextSafe(ctx)
	var id int32
	err := c.ddl(ctx, "create_dashboard", func(d *ddlTxn) (err error) {
		vd := in.Clone()
		vd.UpdateTime = updateTime()
		if existing, ok := c.dashboardNames[dashboardKey{userID: vd.UserID, name: vd.ViewName}]; ok {
			vd.ViewID, id = existing, existing
			return c.replaceDashboard(d, vd)
		}

		if vd.ViewID, err = c.idGen.AllocOne(ctx, d.txn, idgenerator.ScopeDashboard); err != nil {
			return
		}
		if err = c.storage.PutDashboard(d.txn, vd); err != nil {
			return
		}
		c.putDashboard(vd)
		d.onRollback(func() { c.removeDashboard(vd) })
		id = vd.ViewID
		return c.grantOwner(ctx, d, vd.UserID, vd.ViewName, privilege.DashboardObject, vd.ViewID)
	})
	if err != nil {
		return 0, err
	}
	span.Infof("dashboard %s of user %d saved in database %s, id: %d", in.ViewName, in.UserID, c.db.DBName, id)
	return id, nil
}

// ReplaceDashboard overwrites the dashboard with the id of vd, its owner stays.
func (c *Catalog) ReplaceDashboard(ctx context.Context, in *proto.DashboardDescriptor) error {
	return c.ddl(ctx, "replace_dashboard", func(d *ddlTxn) error {
		old, ok := c.dashboards[in.ViewID]
		if !ok {
			return apierrors.Wrapf(apierrors.ErrDashboardNotExist, "dashboard id %d in database %s", in.ViewID, c.db.DBName)
		}
		vd := in.Clone()
		vd.UserID = old.UserID
		vd.UpdateTime = updateTime()
		if other, ok := c.dashboardNames[dashboardKey{userID: vd.UserID, name: vd.ViewName}]; ok && other != vd.ViewID {
			return apierrors.Wrapf(apierrors.ErrAlreadyExists, "dashboard %s of user %d", vd.ViewName, vd.UserID)
		}
		return c.replaceDashboard(d, vd)
	})
}

func (c *Catalog) replaceDashboard(d *ddlTxn, vd *proto.DashboardDescriptor) error {
	old := c.dashboards[vd.ViewID]
	if err := c.storage.PutDashboard(d.txn, vd); err != nil {
		return err
	}
	c.removeDashboard(old)
	c.putDashboard(vd)
	d.onRollback(func() {
		c.removeDashboard(vd)
		c.putDashboard(old)
	})
	return nil
}

// DeleteDashboard removes the dashboard and every grant on it.
func (c *Catalog) DeleteDashboard(ctx context.Context, id int32) error {
	return c.ddl(ctx, "delete_dashboard", func(d *ddlTxn) error {
		vd, ok := c.dashboards[id]
		if !ok {
			return apierrors.Wrapf(apierrors.ErrDashboardNotExist, "dashboard id %d in database %s", id, c.db.DBName)
		}
		if err := c.revokeAll(ctx, d, privilege.DashboardObject, id); err != nil {
			return err
		}
		c.storage.DeleteDashboard(d.txn, id)
		c.removeDashboard(vd)
		d.onRollback(func() { c.putDashboard(vd) })
		return nil
	})
}

func (c *Catalog) GetMetadataForDashboard(userID int32, name string) (*proto.DashboardDescriptor, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	id, ok := c.dashboardNames[dashboardKey{userID: userID, name: name}]
	if !ok {
		return nil, apierrors.Wrapf(apierrors.ErrDashboardNotExist, "dashboard %s of user %d", name, userID)
	}
	return c.dashboards[id].Clone(), nil
}

func (c *Catalog) GetMetadataForDashboardByID(id int32) (*proto.DashboardDescriptor, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	vd, ok := c.dashboards[id]
	if !ok {
		return nil, apierrors.Wrapf(apierrors.ErrDashboardNotExist, "dashboard id %d in database %s", id, c.db.DBName)
	}
	return vd.Clone(), nil
}

// GetAllDashboards returns every dashboard ordered by id.
func (c *Catalog) GetAllDashboards() []*proto.DashboardDescriptor {
	c.lock.RLock()
	defer c.lock.RUnlock()
	ret := make([]*proto.DashboardDescriptor, 0, len(c.dashboards))
	for _, vd := range c.dashboards {
		ret = append(ret, vd.Clone())
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ViewID < ret[j].ViewID })
	return ret
}

// linkToken is derived from the content of the link, sharing the same view twice
// yields the same token. Every 32-bit word of the digest is printed in hex without
// zero padding, so tokens match the ones stored by earlier releases.
func linkToken(ld *proto.LinkDescriptor) string {
	sum := sha1.Sum([]byte(ld.ViewState + ld.ViewMetadata + strconv.Itoa(int(ld.UserID))))
	var digest strings.Builder
	for i := 0; i < sha1.Size; i += 4 {
		digest.WriteString(strconv.FormatUint(uint64(binary.BigEndian.Uint32(sum[i:])), 16))
	}
	token := digest.String()
	if len(token) > linkTokenLen {
		token = token[:linkTokenLen]
	}
	return token
}

// CreateLink saves a shared view and returns its token. Saving the same view again
// only refreshes the update time.
func (c *Catalog) CreateLink(ctx context.Context, in *proto.LinkDescriptor) (string, error) {
	token := linkToken(in)
	err := c.ddl(ctx, "create_link", func(d *ddlTxn) (err error) {
		ld := in.Clone()
		ld.Link = token
		ld.UpdateTime = updateTime()
		if id, ok := c.linkTokens[token]; ok {
			old := c.links[id]
			if old.UserID != ld.UserID {
				return apierrors.Wrapf(apierrors.ErrAlreadyExists, "link %s", token)
			}
			refreshed := old.Clone()
			refreshed.UpdateTime = ld.UpdateTime
			if err = c.storage.PutLink(d.txn, refreshed); err != nil {
				return
			}
			c.putLink(refreshed)
			d.onRollback(func() { c.putLink(old) })
			return nil
		}

		if ld.LinkID, err = c.idGen.AllocOne(ctx, d.txn, idgenerator.ScopeLink); err != nil {
			return
		}
		if err = c.storage.PutLink(d.txn, ld); err != nil {
			return
		}
		c.putLink(ld)
		d.onRollback(func() {
			delete(c.links, ld.LinkID)
			delete(c.linkTokens, ld.Link)
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (c *Catalog) GetMetadataForLink(token string) (*proto.LinkDescriptor, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	id, ok := c.linkTokens[token]
	if !ok {
		return nil, apierrors.Wrapf(apierrors.ErrLinkNotExist, "link %s in database %s", token, c.db.DBName)
	}
	return c.links[id].Clone(), nil
}

func (c *Catalog) GetMetadataForLinkByID(id int32) (*proto.LinkDescriptor, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	ld, ok := c.links[id]
	if !ok {
		return nil, apierrors.Wrapf(apierrors.ErrLinkNotExist, "link id %d in database %s", id, c.db.DBName)
	}
	return ld.Clone(), nil
}
