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
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	apierrors "github.com/cubefs/catalogdb/errors"
	"github.com/cubefs/catalogdb/proto"
)

func TestCatalog_Dashboards(t *testing.T) {
	ctx := context.TODO()
	env := newTestEnv(t, false)
	c := env.open(t)
	defer func() { c.Close() }()

	id, err := c.CreateDashboard(ctx, &proto.DashboardDescriptor{ViewName: "sales", ViewState: "v1", ImageHash: "h1"})
	require.NoError(t, err)
	require.Equal(t, int32(1), id)
	vd, err := c.GetMetadataForDashboard(proto.RootUserID, "sales")
	require.NoError(t, err)
	require.Equal(t, "v1", vd.ViewState)
	require.NotEmpty(t, vd.UpdateTime)

	again, err := c.CreateDashboard(ctx, &proto.DashboardDescriptor{ViewName: "sales", ViewState: "v2"})
	require.NoError(t, err)
	require.Equal(t, id, again)
	vd, err = c.GetMetadataForDashboardByID(id)
	require.NoError(t, err)
	require.Equal(t, "v2", vd.ViewState)
	require.Equal(t, "", vd.ImageHash)

	other, err := c.CreateDashboard(ctx, &proto.DashboardDescriptor{ViewName: "sales", UserID: 3})
	require.NoError(t, err)
	require.Equal(t, int32(2), other)
	third, err := c.CreateDashboard(ctx, &proto.DashboardDescriptor{ViewName: "ops"})
	require.NoError(t, err)
	require.Len(t, c.GetAllDashboards(), 3)

	err = c.ReplaceDashboard(ctx, &proto.DashboardDescriptor{ViewID: id, ViewName: "revenue", ViewState: "v3", UserID: 3})
	require.NoError(t, err)
	_, err = c.GetMetadataForDashboard(proto.RootUserID, "sales")
	require.ErrorIs(t, err, apierrors.ErrDashboardNotExist)
	vd, err = c.GetMetadataForDashboard(proto.RootUserID, "revenue")
	require.NoError(t, err)
	require.Equal(t, id, vd.ViewID)
	require.Equal(t, "v3", vd.ViewState)

	err = c.ReplaceDashboard(ctx, &proto.DashboardDescriptor{ViewID: third, ViewName: "revenue"})
	require.ErrorIs(t, err, apierrors.ErrAlreadyExists)
	err = c.ReplaceDashboard(ctx, &proto.DashboardDescriptor{ViewID: 99, ViewName: "x"})
	require.ErrorIs(t, err, apierrors.ErrDashboardNotExist)

	require.NoError(t, c.DeleteDashboard(ctx, id))
	_, err = c.GetMetadataForDashboardByID(id)
	require.ErrorIs(t, err, apierrors.ErrDashboardNotExist)
	require.ErrorIs(t, c.DeleteDashboard(ctx, id), apierrors.ErrDashboardNotExist)

	c.Close()
	c = env.open(t)
	dashboards := c.GetAllDashboards()
	require.Len(t, dashboards, 2)
	require.Equal(t, other, dashboards[0].ViewID)
	require.Equal(t, third, dashboards[1].ViewID)
	next, err := c.CreateDashboard(ctx, &proto.DashboardDescriptor{ViewName: "new"})
	require.NoError(t, err)
	require.Equal(t, third+1, next)
}

func TestCatalog_Links(t *testing.T) {
	ctx := context.TODO()
	env := newTestEnv(t, false)
	c := env.open(t)
	defer func() { c.Close() }()

	in := &proto.LinkDescriptor{UserID: 2, ViewState: "state", ViewMetadata: "meta"}
	token, err := c.CreateLink(ctx, in)
	require.NoError(t, err)
	sum := sha1.Sum([]byte("statemeta2"))
	var words string
	for i := 0; i < len(sum); i += 4 {
		words += fmt.Sprintf("%x", binary.BigEndian.Uint32(sum[i:i+4]))
	}
	require.Equal(t, words[:linkTokenLen], token)

	ld, err := c.GetMetadataForLink(token)
	require.NoError(t, err)
	require.Equal(t, int32(1), ld.LinkID)
	require.Equal(t, "state", ld.ViewState)

	same, err := c.CreateLink(ctx, in)
	require.NoError(t, err)
	require.Equal(t, token, same)
	ld, err = c.GetMetadataForLink(token)
	require.NoError(t, err)
	require.Equal(t, int32(1), ld.LinkID)

	differ, err := c.CreateLink(ctx, &proto.LinkDescriptor{UserID: 2, ViewState: "other", ViewMetadata: "meta"})
	require.NoError(t, err)
	require.NotEqual(t, token, differ)
	ld, err = c.GetMetadataForLinkByID(2)
	require.NoError(t, err)
	require.Equal(t, differ, ld.Link)

	_, err = c.GetMetadataForLink("deadbeef")
	require.ErrorIs(t, err, apierrors.ErrLinkNotExist)
	_, err = c.GetMetadataForLinkByID(7)
	require.ErrorIs(t, err, apierrors.ErrLinkNotExist)

	c.Close()
	c = env.open(t)
	ld, err = c.GetMetadataForLink(token)
	require.NoError(t, err)
	require.Equal(t, int32(1), ld.LinkID)
	require.Equal(t, int32(2), ld.UserID)
}
