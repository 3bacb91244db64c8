// Package toolchain defines the retro-game build tools the worker exposes
// and both ends of their use.
//
// The catalog names seven tools (create_retro_project, generate_sprite,
// compile_rom, edit_instruction_file, create_asset, build_and_test and
// set_code_opacity) with JSON input schemas. Client is the typed caller
// used by the application; Handler is the worker-side implementation.
// Long-running tools report build.progress events while they run.
package toolchain
