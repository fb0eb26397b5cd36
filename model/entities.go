/*
DESCRIPTION
  Datastore entity registrations.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean).

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  This is distributed in the hope that it will be useful, but WITHOUT
  ANY WARRANTY; without even the implied warranty of MERCHANTABILITY
  or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public
  License for more details.

  You should have received a copy of the GNU General Public License in
  gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package model

import (
	"github.com/ausocean/openfish/datastore"
)

// RegisterEntities is a convenience function that registers all of
// the datastore entities in one go.
func RegisterEntities() {
	datastore.RegisterEntity(typeRequest, func() datastore.Entity { return new(Request) })
	datastore.RegisterEntity(typeSubscriber, func() datastore.Entity { return new(Subscriber) })
	datastore.RegisterEntity(typeNotice, func() datastore.Entity { return new(Notice) })
}
