package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/depot-pkg/depot/internal/app"
	"github.com/depot-pkg/depot/internal/auth"
	"github.com/depot-pkg/depot/internal/catalog"
	"github.com/depot-pkg/depot/internal/rbac"
	"github.com/depot-pkg/depot/internal/snapshot"
)

// Development identities share this password.
const devPassword = "depot-dev-password"

func main() {
	stateDir := getenv("SNAPSHOT_DIR", "./data/state")
	storageRoot := getenv("STORAGE_ROOT", "./data/repository")
	anonymous := getenv("ANONYMOUS_USERNAME", "anonymous")
	admin := getenv("ADMIN_USERNAME", "admin")
	ctx := context.Background()

	graph := rbac.NewService(anonymous)
	if err := graph.Initialize(rbac.Snapshot{}, admin); err != nil {
		log.Fatalf("initialize graph: %v", err)
	}
	// The administrator comes from ADMIN_HASH at runtime and is not persisted.
	adminVerifier, err := auth.HashPassword([]byte(devPassword), bcrypt.MinCost)
	if err != nil {
		log.Fatalf("hash admin password: %v", err)
	}
	creds := auth.NewStore(anonymous, bcrypt.MinCost)
	if err := creds.Initialize(admin, adminVerifier, nil); err != nil {
		log.Fatalf("initialize credentials: %v", err)
	}

	fmt.Println("→ Seeding identities...")
	if err := seedIdentities(graph, creds); err != nil {
		log.Fatalf("seed identities: %v", err)
	}
	fmt.Println("→ Seeding organizations and teams...")
	if err := seedGraph(graph); err != nil {
		log.Fatalf("seed graph: %v", err)
	}
	fmt.Println("→ Seeding permissions...")
	if err := seedPermissions(graph); err != nil {
		log.Fatalf("seed permissions: %v", err)
	}
	fmt.Println("→ Seeding artifacts...")
	if err := seedArtifacts(storageRoot); err != nil {
		log.Fatalf("seed artifacts: %v", err)
	}

	store := snapshot.NewFileStore(stateDir)
	if err := snapshot.SaveFrom(ctx, store, app.PermissionsDocument, graph.Snapshot()); err != nil {
		log.Fatalf("save permissions: %v", err)
	}
	if err := snapshot.SaveFrom(ctx, store, app.CredentialsDocument, creds.Snapshot()); err != nil {
		log.Fatalf("save credentials: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedIdentities(graph *rbac.Service, creds *auth.Store) error {
	for _, name := range []string{"alice", "bob", "carol", "ci-bot"} {
		verifier, err := auth.HashPassword([]byte(devPassword), bcrypt.MinCost)
		if err != nil {
			return err
		}
		if _, err := creds.AddIdentity(name, verifier); err != nil {
			return err
		}
		graph.AddUser(name)
	}
	return nil
}

func seedGraph(graph *rbac.Service) error {
	graph.AddOrganization("acme")
	graph.AddOrganization("partners")

	teams := []struct{ name, org string }{
		{"platform", "acme"},
		{"release", "acme"},
		{"integrators", "partners"},
	}
	for _, t := range teams {
		if _, err := graph.AddTeam(t.name, t.org); err != nil {
			return err
		}
	}

	members := []struct{ team, user string }{
		{"platform", "alice"},
		{"platform", "ci-bot"},
		{"release", "alice"},
		{"release", "bob"},
		{"integrators", "carol"},
	}
	for _, m := range members {
		if err := graph.AddMember(m.team, m.user); err != nil {
			return err
		}
	}
	return nil
}

func seedPermissions(graph *rbac.Service) error {
	groups := []struct {
		kind  rbac.Kind
		name  string
		group string
		level rbac.Level
	}{
		{rbac.KindOrganization, "acme", "com/acme", rbac.Read},
		{rbac.KindTeam, "platform", "com/acme", rbac.Write},
		{rbac.KindTeam, "release", "com/acme", rbac.Manage},
		{rbac.KindOrganization, "partners", "com/acme", rbac.Browse},
		{rbac.KindUser, graph.Anonymous(), "com/acme", rbac.Browse},
	}
	for _, g := range groups {
		if err := graph.SetGroupOverride(g.kind, g.name, g.group, g.level); err != nil {
			return err
		}
	}
	if err := graph.SetArtifactOverride(rbac.KindTeam, "integrators", "com/acme", "client", rbac.Read); err != nil {
		return err
	}
	return graph.SetArtifactOverride(rbac.KindUser, "bob", "com/acme", "internal-tools", rbac.Blocked)
}

func seedArtifacts(root string) error {
	storage := catalog.NewStorage(root)
	paths := []string{
		"com/acme/client/1.0.0/client-1.0.0.jar",
		"com/acme/client/1.0.0/client-1.0.0.pom",
		"com/acme/client/1.0.0/client-1.0.0-sources.jar",
		"com/acme/core/2.1.0/core-2.1.0.jar",
		"com/acme/internal-tools/0.3.0/internal-tools-0.3.0.jar",
	}
	for _, p := range paths {
		coord, err := catalog.ParsePath(p)
		if err != nil {
			return err
		}
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(p))); err == nil {
			continue
		}
		body := fmt.Sprintf("seeded %s\n", coord.PURL())
		if _, _, err := storage.Write(coord, strings.NewReader(body)); err != nil {
			return err
		}
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
