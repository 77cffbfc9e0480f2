package disk

import (
	"os"
)

// DiskManagerTest is a DiskManager over a throwaway temporary file
type DiskManagerTest struct {
	path string
	DiskManager
}

// NewDiskManagerTest returns a DiskManager instance for testing purposes
func NewDiskManagerTest() DiskManager {
	// Retrieve a temporary path.
	f, err := os.CreateTemp("", "medaka-*.db")
	if err != nil {
		panic(err)
	}
	path := f.Name()
	f.Close()
	os.Remove(path)

	diskManager := NewDiskManagerImpl(path)
	return &DiskManagerTest{path, diskManager}
}

// ShutDown closes the database file and removes it
func (d *DiskManagerTest) ShutDown() {
	defer os.Remove(d.path)
	d.DiskManager.ShutDown()
}
