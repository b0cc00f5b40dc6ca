// Package files provides the file system primitives the pipeline persists
// through, plus discovery of record files.
//
// WriteAtomic and SaveGob replace a file by writing a temporary sibling,
// syncing it and renaming it into place. The registry document and every
// transformer and model artifact are written this way.
//
// Discovery locates CSV and XLSX inputs:
//
//	d := files.NewDiscovery(paths.DataDir)
//	path, err := d.ResolveInput("raw", "crop")
package files
