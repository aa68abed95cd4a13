// Package metadata reads the ECMA-335 metadata of managed PE files.
//
// It understands exactly as much of the format as assembly resolution
// and symbol lookup need:
//
//   - the PE container, CLI header and metadata root
//   - the compressed "#~" table stream and the #Strings, #Blob and #GUID heaps
//   - the assembly identity and its assembly references
//   - custom attributes, with fixed arguments of primitive and string type
//   - type definitions with nesting, fields, methods, properties and events
//   - exported types, including type forwarders
//
// Method and field bodies, resources and the #US heap are never read.
// Files are read fully into memory by Open; the returned File holds no
// operating system handle.
//
// # Reading a file
//
//	f, err := metadata.Open("/path/to/System.Runtime.dll")
//	if err != nil {
//		return err
//	}
//	if asm, ok := f.Assembly(); ok {
//		fmt.Println(asm.FullName())
//	}
//	for _, ref := range f.AssemblyReferences() {
//		fmt.Println(ref.FullName())
//	}
package metadata
