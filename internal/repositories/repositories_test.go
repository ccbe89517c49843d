package repositories

import (
	"testing"
	"time"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
)

func setupTestDB(t *testing.T) *testDB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return &testDB{
		connections: NewConnectionRepository(db),
		sessions:    NewSessionRepository(db),
		states:      NewOAuthStateRepository(db),
	}
}

type testDB struct {
	connections *ConnectionRepository
	sessions    *SessionRepository
	states      *OAuthStateRepository
}

func newTestConnection(userID string) *models.Connection {
	conn := models.NewConnection(0, userID, "spotify_"+userID)
	conn.SetAccessToken("access_token_value")
	conn.SetRefreshToken("refresh_token_value")
	conn.SetExpiresAt(time.Now().Add(time.Hour))
	conn.SetDisplayName("Test User")
	conn.SetEmail("test@example.com")
	return conn
}

func TestConnectionRepository(t *testing.T) {
	t.Run("GetByUser Missing Returns Nil", func(t *testing.T) {
		repo := setupTestDB(t).connections

		conn, err := repo.GetByUser("nobody")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if conn != nil {
			t.Error("expected nil connection for unknown user")
		}
	})

	t.Run("Upsert Then Get", func(t *testing.T) {
		repo := setupTestDB(t).connections

		conn := newTestConnection("user1")
		if err := repo.Upsert(conn); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
		if conn.ID() == "" {
			t.Error("expected generated id after upsert")
		}

		got, err := repo.GetByUser("user1")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got == nil {
			t.Fatal("expected connection")
		}
		if got.SpotifyUserID() != "spotify_user1" {
			t.Errorf("expected spotify user id spotify_user1, got %s", got.SpotifyUserID())
		}
		if got.AccessToken() != "access_token_value" {
			t.Errorf("unexpected access token %s", got.AccessToken())
		}
		if !got.HasRefreshToken() {
			t.Error("expected refresh token to persist")
		}
	})

	t.Run("Upsert Replaces Existing", func(t *testing.T) {
		repo := setupTestDB(t).connections

		conn := newTestConnection("user1")
		if err := repo.Upsert(conn); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
		firstID := conn.ID()

		replacement := newTestConnection("user1")
		replacement.SetDisplayName("Renamed")
		if err := repo.Upsert(replacement); err != nil {
			t.Fatalf("failed to re-upsert: %v", err)
		}

		got, err := repo.GetByUser("user1")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got.ID() != firstID {
			t.Errorf("upsert should keep row identity, got %s want %s", got.ID(), firstID)
		}
		if got.DisplayName() != "Renamed" {
			t.Errorf("expected updated display name, got %s", got.DisplayName())
		}
	})

	t.Run("UpdateTokens", func(t *testing.T) {
		repo := setupTestDB(t).connections

		conn := newTestConnection("user1")
		if err := repo.Upsert(conn); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		newExpiry := time.Now().Add(2 * time.Hour)
		if err := repo.UpdateTokens("user1", "new_access", "", newExpiry); err != nil {
			t.Fatalf("failed to update tokens: %v", err)
		}

		got, _ := repo.GetByUser("user1")
		if got.AccessToken() != "new_access" {
			t.Errorf("expected new access token, got %s", got.AccessToken())
		}
		if got.RefreshToken() != "refresh_token_value" {
			t.Error("empty refresh token should keep the previous one")
		}

		if err := repo.UpdateTokens("ghost", "x", "y", newExpiry); err == nil {
			t.Error("expected error updating tokens for unknown user")
		}
	})

	t.Run("DeleteByUser", func(t *testing.T) {
		repo := setupTestDB(t).connections

		conn := newTestConnection("user1")
		if err := repo.Upsert(conn); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		if err := repo.DeleteByUser("user1"); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}

		got, err := repo.GetByUser("user1")
		if err != nil {
			t.Fatalf("unexpected error after delete: %v", err)
		}
		if got != nil {
			t.Error("expected nil connection after delete")
		}

		if err := repo.DeleteByUser("user1"); err == nil {
			t.Error("expected error deleting twice")
		}
	})

	t.Run("Upsert Rejects Invalid", func(t *testing.T) {
		repo := setupTestDB(t).connections

		conn := models.NewConnection(0, "user1", "spotify_user1")
		// no access token
		if err := repo.Upsert(conn); err == nil {
			t.Error("expected validation error for missing access token")
		}
	})
}

func TestSessionRepository(t *testing.T) {
	t.Run("Current Empty", func(t *testing.T) {
		repo := setupTestDB(t).sessions

		session, err := repo.Current()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if session != nil {
			t.Error("expected nil session when none exist")
		}
	})

	t.Run("Create Then Current", func(t *testing.T) {
		repo := setupTestDB(t).sessions

		first := models.NewSession(0, "user1", "a@example.com", "cred1")
		if err := repo.Create(first); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}

		second := models.NewSession(0, "user2", "b@example.com", "cred2")
		if err := repo.Create(second); err != nil {
			t.Fatalf("failed to create second session: %v", err)
		}

		current, err := repo.Current()
		if err != nil {
			t.Fatalf("failed to get current: %v", err)
		}
		if current == nil || current.UserID() != "user2" {
			t.Errorf("expected most recent session user2, got %+v", current)
		}
	})

	t.Run("DeleteAll", func(t *testing.T) {
		repo := setupTestDB(t).sessions

		session := models.NewSession(0, "user1", "a@example.com", "cred1")
		if err := repo.Create(session); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}

		if err := repo.DeleteAll(); err != nil {
			t.Fatalf("failed to delete sessions: %v", err)
		}

		current, err := repo.Current()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if current != nil {
			t.Error("expected no session after DeleteAll")
		}
	})
}

func TestOAuthStateRepository(t *testing.T) {
	t.Run("Save Get Clear", func(t *testing.T) {
		repo := setupTestDB(t).states

		if err := repo.Save("user1", "nonce123"); err != nil {
			t.Fatalf("failed to save state: %v", err)
		}

		state, err := repo.Get("user1")
		if err != nil {
			t.Fatalf("failed to get state: %v", err)
		}
		if state != "nonce123" {
			t.Errorf("expected nonce123, got %s", state)
		}

		// Saving again replaces in place
		if err := repo.Save("user1", "nonce456"); err != nil {
			t.Fatalf("failed to replace state: %v", err)
		}
		state, _ = repo.Get("user1")
		if state != "nonce456" {
			t.Errorf("expected replaced nonce, got %s", state)
		}

		if err := repo.Clear("user1"); err != nil {
			t.Fatalf("failed to clear state: %v", err)
		}
		state, _ = repo.Get("user1")
		if state != "" {
			t.Errorf("expected empty state after clear, got %s", state)
		}
	})

	t.Run("Get Missing", func(t *testing.T) {
		repo := setupTestDB(t).states

		state, err := repo.Get("ghost")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if state != "" {
			t.Errorf("expected empty state, got %s", state)
		}
	})
}
