package container

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/testcontainers/testcontainers-go/modules/gcloud"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// FirestoreProjectID is the project id used by the Firestore emulator.
const FirestoreProjectID = "journal-test"

// Firestore is a handle on a Firestore emulator container
// started through testcontainers.
type Firestore struct {
	*gcloud.GCloudContainer
}

// NewFirestore creates and starts a new Firestore emulator container,
// then returns a handle to said container to manage its lifecycle.
func NewFirestore(ctx context.Context) (*Firestore, error) {
	c, err := gcloud.RunFirestore(
		ctx,
		"gcr.io/google.com/cloudsdktool/cloud-sdk:367.0.0-emulators",
		gcloud.WithProjectID(FirestoreProjectID),
	)
	if err != nil {
		return nil, fmt.Errorf("container.NewFirestore: failed to run new container, %w", err)
	}

	return &Firestore{GCloudContainer: c}, nil
}

// Client returns a new Firestore client connected to the emulator.
func (f *Firestore) Client(ctx context.Context) (*firestore.Client, error) {
	conn, err := grpc.NewClient(f.URI, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("container.Firestore: failed to dial emulator, %w", err)
	}

	client, err := firestore.NewClient(ctx, FirestoreProjectID, option.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("container.Firestore: failed to create client, %w", err)
	}

	return client, nil
}
