package forge

import (
	"testing"
)

func TestAssetServer_PrimitiveMeshCached(t *testing.T) {
	server := NewAssetServer()

	cube := server.PrimitiveMesh("cube")
	if !cube.Valid() {
		t.Fatalf("expected a valid cube mesh")
	}

	again := server.PrimitiveMesh("cube")
	if cube != again {
		t.Errorf("expected the cached cube mesh, got a new one")
	}

	if unknown := server.PrimitiveMesh("teapot"); unknown.Valid() {
		t.Errorf("unknown primitive should return an invalid mesh")
	}
}

func TestAssetServer_CubeMeshShape(t *testing.T) {
	server := NewAssetServer()
	asset, ok := server.MeshAsset(server.PrimitiveMesh("cube"))
	if !ok {
		t.Fatalf("cube mesh asset missing")
	}

	// 6 faces, 4 vertices and 2 triangles each.
	if asset.vertices.Len() != 24 {
		t.Errorf("expected 24 vertices, got %d", asset.vertices.Len())
	}
	if len(asset.indices) != 36 {
		t.Errorf("expected 36 indices, got %d", len(asset.indices))
	}
	for _, idx := range asset.indices {
		if int(idx) >= asset.vertices.Len() {
			t.Fatalf("index %d out of range", idx)
		}
	}
}

func TestAssetServer_SphereMeshShape(t *testing.T) {
	server := NewAssetServer()
	asset, ok := server.MeshAsset(server.PrimitiveMesh("sphere"))
	if !ok {
		t.Fatalf("sphere mesh asset missing")
	}

	// 24 segments x 16 rings, plus the seam and pole rows.
	expectedVerts := (24 + 1) * (16 + 1)
	if asset.vertices.Len() != expectedVerts {
		t.Errorf("expected %d vertices, got %d", expectedVerts, asset.vertices.Len())
	}
	if len(asset.indices) != 24*16*6 {
		t.Errorf("expected %d indices, got %d", 24*16*6, len(asset.indices))
	}
}

func TestAssetServer_CreateTexture(t *testing.T) {
	server := NewAssetServer()

	id := server.CreateTexture([]uint8{1, 2, 3, 4}, 1, 1)
	asset, ok := server.Texture(id)
	if !ok {
		t.Fatalf("created texture not found")
	}
	if asset.width != 1 || asset.height != 1 {
		t.Errorf("expected 1x1 texture, got %dx%d", asset.width, asset.height)
	}

	if _, ok := server.Texture("no-such-id"); ok {
		t.Errorf("lookup of unknown texture should fail")
	}
}

func TestAssetServer_LoadTextureMissingFile(t *testing.T) {
	server := NewAssetServer()
	if _, err := server.LoadTexture("does-not-exist.png"); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}

func TestNextPow2(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 4, 5: 8, 100: 128, 256: 256}
	for in, want := range cases {
		if got := nextPow2(in); got != want {
			t.Errorf("nextPow2(%d): expected %d, got %d", in, want, got)
		}
	}
}
