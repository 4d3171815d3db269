package stage

import (
	"fmt"
	"strconv"
	"strings"

	"plotline/internal/jobs"
	"plotline/internal/services"
)

// ProjectRef is the ref used by stages whose single unit covers the whole manuscript.
const ProjectRef = "manuscript"

// VariantRef joins a target id and variant number into a unit ref.
func VariantRef(target string, variant int) string {
	return target + "#" + strconv.Itoa(variant)
}

// ParseVariantRef splits a ref produced by VariantRef.
func ParseVariantRef(ref string) (string, int, error) {
	idx := strings.LastIndex(ref, "#")
	if idx <= 0 {
		return "", 0, fmt.Errorf("ref %q has no variant", ref)
	}
	variant, err := strconv.Atoi(ref[idx+1:])
	if err != nil || variant < 0 {
		return "", 0, fmt.Errorf("ref %q has invalid variant", ref)
	}
	return ref[:idx], variant, nil
}

// Fail wraps err with the stage name so errors read "stage: operation: message".
func Fail(marker error, name jobs.Stage, operation, message string, err error) error {
	return services.Wrap(marker, string(name), operation, message, err)
}
