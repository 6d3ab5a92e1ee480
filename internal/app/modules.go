package app

import (
	"io"
	"time"

	"github.com/vk/flowgrid/internal/registry"
	"github.com/vk/flowgrid/modules/display"
	"github.com/vk/flowgrid/modules/http_client"
	"github.com/vk/flowgrid/modules/http_request"
	"github.com/vk/flowgrid/modules/image_generator"
	"github.com/vk/flowgrid/modules/key_value"
	"github.com/vk/flowgrid/modules/mail"
	"github.com/vk/flowgrid/modules/relational"
	"github.com/vk/flowgrid/modules/socketio"
	"github.com/vk/flowgrid/modules/text_generator"
)

// coreModules is the definitive list of all modules that are compiled into
// the flowgrid binary, configured from the settings file.
func coreModules(s *Settings, out io.Writer) []registry.Module {
	httpOpts := http_client.Options{}
	if s != nil {
		httpOpts.InsecureSkipVerify = s.HTTP.InsecureSkipVerify
		if s.HTTP.TimeoutMs > 0 {
			httpOpts.Timeout = time.Duration(s.HTTP.TimeoutMs) * time.Millisecond
		}
	}

	return []registry.Module{
		&display.Module{Out: out},
		&text_generator.Module{Defaults: s.Integration("text_generator"), HTTP: httpOpts},
		&image_generator.Module{Defaults: s.Integration("image_generator"), HTTP: httpOpts},
		&key_value.Module{Defaults: s.Integration("key_value"), HTTP: httpOpts},
		&relational.Module{Defaults: s.Integration("relational"), HTTP: httpOpts},
		&mail.Module{Defaults: s.Integration("mail"), HTTP: httpOpts},
		&http_request.Module{HTTP: httpOpts},
		&socketio.Module{Defaults: s.Integration("messaging")},
	}
}
