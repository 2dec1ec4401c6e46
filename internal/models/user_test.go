package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserAfterFindNormalizesPhotoURL(t *testing.T) {
	u := &User{PhotoUrl: "uploads/2026/08/photo.png"}
	require.NoError(t, u.AfterFind(nil))
	require.Equal(t, "/uploads/2026/08/photo.png", u.PhotoUrl)
}

func TestUserAfterFindKeepsAbsolutePath(t *testing.T) {
	u := &User{PhotoUrl: "/uploads/photo.png"}
	require.NoError(t, u.AfterFind(nil))
	require.Equal(t, "/uploads/photo.png", u.PhotoUrl)
}

func TestUserAfterFindEmptyPhotoURL(t *testing.T) {
	u := &User{}
	require.NoError(t, u.AfterFind(nil))
	require.Empty(t, u.PhotoUrl)
}
