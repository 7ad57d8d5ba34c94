package syncx

import "log"

// Swallow runs a best-effort post-commit hook and discards its error after
// logging. Used for the side effects of a successful submission (event
// emission, certificate evaluation): once the grade is recorded, nothing a
// hook does may surface as a submit failure.
func Swallow(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("hook %s panicked: %v", name, r)
		}
	}()
	if err := fn(); err != nil {
		log.Printf("hook %s failed: %v", name, err)
	}
}
