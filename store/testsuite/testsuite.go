package testsuite

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/bornholm/remotedav"
	"github.com/bornholm/remotedav/store"
	"github.com/pkg/errors"
)

type storeTestCase struct {
	Name string
	Run  func(ctx context.Context, s store.Store) error
}

var storeTestCases = []storeTestCase{
	{
		Name: "CreateCollection",
		Run:  CreateCollection,
	},
	{
		Name: "WriteMember",
		Run:  WriteMember,
	},
	{
		Name: "WriteWithoutParent",
		Run:  WriteWithoutParent,
	},
	{
		Name: "ConditionalWrite",
		Run:  ConditionalWrite,
	},
	{
		Name: "ListCollection",
		Run:  ListCollection,
	},
	{
		Name: "LargeWrite",
		Run:  LargeWrite,
	},
	{
		Name: "MemberMetadata",
		Run:  MemberMetadata,
	},
	{
		Name: "DeleteMember",
		Run:  DeleteMember,
	},
	{
		Name: "DeleteNonEmptyCollection",
		Run:  DeleteNonEmptyCollection,
	},
	{
		Name: "MoveMember",
		Run:  MoveMember,
	},
	{
		Name: "CopyMember",
		Run:  CopyMember,
	},
	{
		Name: "MoveTree",
		Run:  MoveTree,
	},
}

// TestStore runs the conformance suite against the given store.
func TestStore(t *testing.T, s store.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s = remotedav.WithLogger(s, slog.Default())

	for _, tc := range storeTestCases {
		t.Run(tc.Name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			if err := tc.Run(ctx, s); err != nil {
				t.Errorf("%+v", errors.WithStack(err))
			}
		})
	}
}
